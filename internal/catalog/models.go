// Package catalog records metadata about the populations, projections, and
// attribute namespaces held by a container. It is a manifest, not a cache:
// rows here describe sizes and names, never graph or attribute payloads.
package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PopulationEntry mirrors one row of the population registry (pkg/population)
// once it has been committed to a container.
type PopulationEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Container string    `gorm:"column:container;type:varchar(512);uniqueIndex:idx_pop_container_name"`
	Name      string    `gorm:"column:name;type:varchar(128);uniqueIndex:idx_pop_container_name"`
	Index     uint32    `gorm:"column:pop_idx"`
	Size      uint64    `gorm:"column:size"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for PopulationEntry.
func (PopulationEntry) TableName() string { return "neuroh5_populations" }

// ProjectionEntry records a (src, dst) projection's shape as stored by
// ManifestStore.UpsertProjection.
type ProjectionEntry struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Container  string    `gorm:"column:container;type:varchar(512);uniqueIndex:idx_proj_container_pair"`
	SrcPop     string    `gorm:"column:src_pop;type:varchar(128);uniqueIndex:idx_proj_container_pair"`
	DstPop     string    `gorm:"column:dst_pop;type:varchar(128);uniqueIndex:idx_proj_container_pair"`
	BlockCount uint64    `gorm:"column:block_count"`
	EdgeCount  uint64    `gorm:"column:edge_count"`
	ChunkSize  uint32    `gorm:"column:chunk_size"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for ProjectionEntry.
func (ProjectionEntry) TableName() string { return "neuroh5_projections" }

// AttributeNamespaceEntry records one (population, namespace, attribute)
// triple's shape: element kind, count, and chunking.
type AttributeNamespaceEntry struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Container   string    `gorm:"column:container;type:varchar(512);uniqueIndex:idx_attr_container_key"`
	Population  string    `gorm:"column:population;type:varchar(128);uniqueIndex:idx_attr_container_key"`
	Namespace   string    `gorm:"column:namespace;type:varchar(128);uniqueIndex:idx_attr_container_key"`
	Attribute   string    `gorm:"column:attribute;type:varchar(128);uniqueIndex:idx_attr_container_key"`
	ElementKind string    `gorm:"column:element_kind;type:varchar(32)"`
	Count       uint64    `gorm:"column:count"`
	ChunkSize   uint32    `gorm:"column:chunk_size"`
	Extra       JSONField `gorm:"column:extra;type:json"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for AttributeNamespaceEntry.
func (AttributeNamespaceEntry) TableName() string { return "neuroh5_attribute_namespaces" }

// AppendCommit is a per-rank completion marker written transactionally once
// a rank's share of a collective append has landed in the container. A
// caller resuming a job after a crash mid-write can tell, per container and
// dataset path, which ranks had already committed.
type AppendCommit struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Container  string    `gorm:"column:container;type:varchar(512);index:idx_commit_container_path"`
	Path       string    `gorm:"column:path;type:varchar(512);index:idx_commit_container_path"`
	Rank       int       `gorm:"column:rank"`
	RankCount  int       `gorm:"column:rank_count"`
	RowsAdded  uint64    `gorm:"column:rows_added"`
	CommittedAt time.Time `gorm:"column:committed_at;autoCreateTime"`
}

// TableName returns the table name for AppendCommit.
func (AppendCommit) TableName() string { return "neuroh5_append_commits" }

// JSONField is a byte-backed JSON column, reused from the teacher's GORM
// scanning pattern.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for catalog.JSONField")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func marshalExtra(v interface{}) JSONField {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return JSONField(b)
}
