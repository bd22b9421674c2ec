package model

// Record is a single keyed row written by a writer
type Record struct {
	Key           string `msgpack:"key" json:"key"`
	PartitionPath string `msgpack:"partition" json:"partition"`
	Value         []byte `msgpack:"value,omitempty" json:"value,omitempty"`
	IsTombstone   bool   `msgpack:"tombstone,omitempty" json:"tombstone,omitempty"` // True if this is a delete marker
}

// RecordEntry is a record as stored inside a data file, stamped with the instant that wrote it
type RecordEntry struct {
	Key         string `msgpack:"k"`
	Value       []byte `msgpack:"v,omitempty"`
	InstantTime string `msgpack:"t"`
	IsTombstone bool   `msgpack:"d,omitempty"`
}

// LogBlock is the payload of one log file: the records appended by one delta commit
type LogBlock struct {
	InstantTime string        `msgpack:"instant_time"`
	Entries     []RecordEntry `msgpack:"entries"`
}

// BaseBlock is the payload of a base file: live records sorted by key
type BaseBlock struct {
	InstantTime string        `msgpack:"instant_time"`
	Entries     []RecordEntry `msgpack:"entries"`
}
