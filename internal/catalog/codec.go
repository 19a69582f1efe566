package catalog

import (
	"github.com/cubestore/metastore/internal/rowcodec"
)

// Field ids are a wire contract (spec §3.1): stable once published, never
// reassigned. Each entity's ids are independent of every other entity's.
const (
	fSchemaName = 1
)

const (
	fTableSchemaID     = 1
	fTableName         = 2
	fTableColumns      = 3
	fTableLocation     = 4
	fTableImportFormat = 5
)

const (
	fColumnName        = 1
	fColumnType        = 2
	fColumnColumnIndex = 3
)

const (
	fIndexTableID     = 1
	fIndexName        = 2
	fIndexColumns     = 3
	fIndexSortKeySize = 4
)

const (
	fPartitionIndexID           = 1
	fPartitionParentPartitionID = 2
	fPartitionMinValue          = 3
	fPartitionMaxValue          = 4
	fPartitionActive            = 5
	fPartitionMainRowCount      = 6
)

const (
	fChunkPartitionID = 1
	fChunkRowCount    = 2
	fChunkUploaded    = 3
	fChunkActive      = 4
)

const (
	fWalTableID  = 1
	fWalRowCount = 2
	fWalUploaded = 3
)

const (
	fJobEntityTableID = 1
	fJobRowID         = 2
	fJobType          = 3
	fJobStatus        = 4
	fJobProcessingBy  = 5
	fJobHeartBeat     = 6
	fJobShard         = 7
)

func encodeColumn(c Column) []byte {
	w := rowcodec.NewWriter()
	w.PutString(fColumnName, c.Name)
	w.PutUint64(fColumnType, uint64(c.Type))
	w.PutUint64(fColumnColumnIndex, uint64(c.ColumnIndex))
	return w.Bytes()
}

func decodeColumn(b []byte) (Column, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Column{}, err
	}
	return Column{
		Name:        r.GetString(fColumnName, ""),
		Type:        ColumnType(r.GetUint64(fColumnType, 0)),
		ColumnIndex: uint32(r.GetUint64(fColumnColumnIndex, 0)),
	}, nil
}

func encodeColumns(cols []Column) [][]byte {
	out := make([][]byte, len(cols))
	for i, c := range cols {
		out[i] = encodeColumn(c)
	}
	return out
}

func decodeColumns(raw [][]byte) ([]Column, error) {
	out := make([]Column, len(raw))
	for i, b := range raw {
		c, err := decodeColumn(b)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func encodeSchema(s Schema) []byte {
	w := rowcodec.NewWriter()
	w.PutString(fSchemaName, s.Name)
	return w.Bytes()
}

func decodeSchema(b []byte) (Schema, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Schema{}, err
	}
	return Schema{Name: r.GetString(fSchemaName, "")}, nil
}

func encodeTable(t Table) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fTableSchemaID, t.SchemaID)
	w.PutString(fTableName, t.Name)
	w.PutSubRecords(fTableColumns, encodeColumns(t.Columns))
	w.PutOptionalString(fTableLocation, t.Location)
	if t.ImportFormat != nil {
		w.PutUint64(fTableImportFormat, uint64(*t.ImportFormat))
	}
	return w.Bytes()
}

func decodeTable(b []byte) (Table, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Table{}, err
	}
	rawCols, err := r.GetSubRecords(fTableColumns)
	if err != nil {
		return Table{}, err
	}
	cols, err := decodeColumns(rawCols)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		SchemaID: r.GetUint64(fTableSchemaID, 0),
		Name:     r.GetString(fTableName, ""),
		Columns:  cols,
		Location: r.GetOptionalString(fTableLocation),
	}
	if r.Has(fTableImportFormat) {
		f := ImportFormat(r.GetUint64(fTableImportFormat, 0))
		t.ImportFormat = &f
	}
	return t, nil
}

func encodeIndex(ix Index) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fIndexTableID, ix.TableID)
	w.PutString(fIndexName, ix.Name)
	w.PutSubRecords(fIndexColumns, encodeColumns(ix.Columns))
	w.PutUint64(fIndexSortKeySize, uint64(ix.SortKeySize))
	return w.Bytes()
}

func decodeIndex(b []byte) (Index, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Index{}, err
	}
	rawCols, err := r.GetSubRecords(fIndexColumns)
	if err != nil {
		return Index{}, err
	}
	cols, err := decodeColumns(rawCols)
	if err != nil {
		return Index{}, err
	}
	return Index{
		TableID:     r.GetUint64(fIndexTableID, 0),
		Name:        r.GetString(fIndexName, ""),
		Columns:     cols,
		SortKeySize: uint32(r.GetUint64(fIndexSortKeySize, 0)),
	}, nil
}

func encodePartition(p Partition) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fPartitionIndexID, p.IndexID)
	w.PutOptionalUint64(fPartitionParentPartitionID, p.ParentPartitionID)
	w.PutOptionalBytes(fPartitionMinValue, p.MinValue, p.MinValue != nil)
	w.PutOptionalBytes(fPartitionMaxValue, p.MaxValue, p.MaxValue != nil)
	w.PutBool(fPartitionActive, p.Active)
	w.PutUint64(fPartitionMainRowCount, p.MainTableRowCount)
	return w.Bytes()
}

func decodePartition(b []byte) (Partition, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Partition{}, err
	}
	p := Partition{
		IndexID:           r.GetUint64(fPartitionIndexID, 0),
		ParentPartitionID: r.GetOptionalUint64(fPartitionParentPartitionID),
		Active:            r.GetBool(fPartitionActive, false),
		MainTableRowCount: r.GetUint64(fPartitionMainRowCount, 0),
	}
	if v, ok := r.GetBytes(fPartitionMinValue); ok {
		p.MinValue = v
	}
	if v, ok := r.GetBytes(fPartitionMaxValue); ok {
		p.MaxValue = v
	}
	return p, nil
}

func encodeChunk(c Chunk) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fChunkPartitionID, c.PartitionID)
	w.PutUint64(fChunkRowCount, c.RowCount)
	w.PutBool(fChunkUploaded, c.Uploaded)
	w.PutBool(fChunkActive, c.Active)
	return w.Bytes()
}

func decodeChunk(b []byte) (Chunk, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		PartitionID: r.GetUint64(fChunkPartitionID, 0),
		RowCount:    r.GetUint64(fChunkRowCount, 0),
		Uploaded:    r.GetBool(fChunkUploaded, false),
		Active:      r.GetBool(fChunkActive, false),
	}, nil
}

func encodeWal(w0 Wal) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fWalTableID, w0.TableID)
	w.PutUint64(fWalRowCount, w0.RowCount)
	w.PutBool(fWalUploaded, w0.Uploaded)
	return w.Bytes()
}

func decodeWal(b []byte) (Wal, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Wal{}, err
	}
	return Wal{
		TableID:  r.GetUint64(fWalTableID, 0),
		RowCount: r.GetUint64(fWalRowCount, 0),
		Uploaded: r.GetBool(fWalUploaded, false),
	}, nil
}

func encodeJob(j Job) []byte {
	w := rowcodec.NewWriter()
	w.PutUint64(fJobEntityTableID, uint64(j.RowReference.EntityTableID))
	w.PutUint64(fJobRowID, j.RowReference.RowID)
	w.PutString(fJobType, j.JobType)
	w.PutUint64(fJobStatus, uint64(j.Status))
	w.PutOptionalString(fJobProcessingBy, j.ProcessingBy)
	w.PutInt64(fJobHeartBeat, j.HeartBeat)
	w.PutString(fJobShard, j.Shard)
	return w.Bytes()
}

func decodeJob(b []byte) (Job, error) {
	r, err := rowcodec.NewReader(b)
	if err != nil {
		return Job{}, err
	}
	return Job{
		RowReference: RowReference{
			EntityTableID: uint32(r.GetUint64(fJobEntityTableID, 0)),
			RowID:         r.GetUint64(fJobRowID, 0),
		},
		JobType:      r.GetString(fJobType, ""),
		Status:       JobStatus(r.GetUint64(fJobStatus, 0)),
		ProcessingBy: r.GetOptionalString(fJobProcessingBy),
		HeartBeat:    r.GetInt64(fJobHeartBeat, 0),
		Shard:        r.GetString(fJobShard, ""),
	}, nil
}
