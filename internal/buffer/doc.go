// Package buffer provides thread-safe buffering for audit records.
//
// Archive strategies collect records per stream (plugin and consumer unit) and write
// a file when the rotation policy fires or the buffer is full.
//
// # StreamBuffer
//
//	buf := buffer.New(event.StreamID{Plugin: "sign", Shard: 0}, maxSizeBytes, maxRecords)
//
//	if err := buf.Add(record); errors.Is(err, apperrors.ErrBufferFull) {
//	    records := buf.Drain()
//	    writeRecords(records)
//	}
//
// # Buffer Manager
//
// Manager hands out one buffer per stream and lists them for periodic flushes:
//
//	manager := buffer.NewManager(maxSizeBytes, maxRecords)
//	buf := manager.GetOrCreate(stream)
//	for _, b := range manager.Buffers() {
//	    flush(b.Stream(), b.Drain())
//	}
//
// # Thread Safety
//
// All buffer operations are thread-safe using read-write mutexes:
//
//   - Add(), Drain(), Reset() use write locks
//   - Stats(), IsEmpty() use read locks
//   - Manager.GetOrCreate() uses double-checked locking
package buffer
