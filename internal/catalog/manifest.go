package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManifestStore records and reports container metadata: populations,
// projections, attribute namespaces, and per-rank append completions.
type ManifestStore struct {
	db *gorm.DB
}

// NewManifestStore wraps an open GORM database as a ManifestStore.
func NewManifestStore(db *gorm.DB) *ManifestStore {
	return &ManifestStore{db: db}
}

// UpsertPopulation records (or updates the size of) a population.
func (m *ManifestStore) UpsertPopulation(ctx context.Context, container, name string, idx uint32, size uint64) error {
	entry := &PopulationEntry{Container: container, Name: name, Index: idx, Size: size}
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "container"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"pop_idx", "size"}),
		}).
		Create(entry).Error
}

// Populations lists every population recorded for a container.
func (m *ManifestStore) Populations(ctx context.Context, container string) ([]PopulationEntry, error) {
	var rows []PopulationEntry
	err := m.db.WithContext(ctx).Where("container = ?", container).Order("pop_idx").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list populations: %w", err)
	}
	return rows, nil
}

// UpsertProjection records a projection's committed shape after a write or
// append collective completes.
func (m *ManifestStore) UpsertProjection(ctx context.Context, container, srcPop, dstPop string, blockCount, edgeCount uint64, chunkSize uint32) error {
	entry := &ProjectionEntry{
		Container:  container,
		SrcPop:     srcPop,
		DstPop:     dstPop,
		BlockCount: blockCount,
		EdgeCount:  edgeCount,
		ChunkSize:  chunkSize,
	}
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "container"}, {Name: "src_pop"}, {Name: "dst_pop"}},
			DoUpdates: clause.AssignmentColumns([]string{"block_count", "edge_count", "chunk_size", "updated_at"}),
		}).
		Create(entry).Error
}

// Projection looks up a projection's recorded shape, if any.
func (m *ManifestStore) Projection(ctx context.Context, container, srcPop, dstPop string) (*ProjectionEntry, error) {
	var row ProjectionEntry
	err := m.db.WithContext(ctx).
		Where("container = ? AND src_pop = ? AND dst_pop = ?", container, srcPop, dstPop).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up projection: %w", err)
	}
	return &row, nil
}

// UpsertAttributeNamespace records an attribute vector's committed shape.
func (m *ManifestStore) UpsertAttributeNamespace(ctx context.Context, container, population, namespace, attribute, elementKind string, count uint64, chunkSize uint32, extra interface{}) error {
	entry := &AttributeNamespaceEntry{
		Container:   container,
		Population:  population,
		Namespace:   namespace,
		Attribute:   attribute,
		ElementKind: elementKind,
		Count:       count,
		ChunkSize:   chunkSize,
		Extra:       marshalExtra(extra),
	}
	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "container"}, {Name: "population"}, {Name: "namespace"}, {Name: "attribute"}},
			DoUpdates: clause.AssignmentColumns([]string{"element_kind", "count", "chunk_size", "extra", "updated_at"}),
		}).
		Create(entry).Error
}

// AttributeNamespaces lists every attribute recorded for a population under
// a namespace.
func (m *ManifestStore) AttributeNamespaces(ctx context.Context, container, population, namespace string) ([]AttributeNamespaceEntry, error) {
	var rows []AttributeNamespaceEntry
	err := m.db.WithContext(ctx).
		Where("container = ? AND population = ? AND namespace = ?", container, population, namespace).
		Order("attribute").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute namespaces: %w", err)
	}
	return rows, nil
}

// RecordAppendCommit marks one rank's share of a collective append as
// durably committed. Safe to call once per (container, path, rank) per
// append; a resuming caller uses CommittedRanks to find what still needs
// redoing after a crash mid-write.
func (m *ManifestStore) RecordAppendCommit(ctx context.Context, container, path string, rank, rankCount int, rowsAdded uint64) error {
	entry := &AppendCommit{
		Container: container,
		Path:      path,
		Rank:      rank,
		RankCount: rankCount,
		RowsAdded: rowsAdded,
	}
	return m.db.WithContext(ctx).Create(entry).Error
}

// CommittedRanks returns, for the given (container, path), a map from each
// rank that has a recorded commit to that rank's most recent commit.
func (m *ManifestStore) CommittedRanks(ctx context.Context, container, path string) (map[int]AppendCommit, error) {
	var rows []AppendCommit
	err := m.db.WithContext(ctx).
		Where("container = ? AND path = ?", container, path).
		Order("committed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list append commits: %w", err)
	}

	byRank := make(map[int]AppendCommit, len(rows))
	for _, row := range rows {
		if _, seen := byRank[row.Rank]; !seen {
			byRank[row.Rank] = row
		}
	}
	return byRank, nil
}
