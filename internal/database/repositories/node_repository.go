// Package repositories provides data access for the registry models.
package repositories

import (
	"context"
	"time"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/openlumen/artnode/internal/database/models"
)

// NodeRepository handles node registry data access.
type NodeRepository struct {
	db *gorm.DB
}

// NewNodeRepository creates a NodeRepository.
func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// FindAll returns all known nodes, most recently seen first.
func (r *NodeRepository) FindAll(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	result := r.db.WithContext(ctx).
		Order("last_seen DESC").
		Find(&nodes)
	return nodes, result.Error
}

// FindByAddress returns the node bound to an IP address, or nil.
func (r *NodeRepository) FindByAddress(ctx context.Context, address string) (*models.Node, error) {
	var node models.Node
	result := r.db.WithContext(ctx).First(&node, "address = ?", address)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &node, nil
}

// Upsert records a node sighting, creating the row on first contact and
// refreshing the descriptive fields and last-seen time afterwards.
func (r *NodeRepository) Upsert(ctx context.Context, node models.Node) (*models.Node, error) {
	existing, err := r.FindByAddress(ctx, node.Address)
	if err != nil {
		return nil, err
	}

	node.LastSeen = time.Now()

	if existing == nil {
		node.ID = cuid.New()
		if err := r.db.WithContext(ctx).Create(&node).Error; err != nil {
			return nil, err
		}
		return &node, nil
	}

	node.ID = existing.ID
	node.FirstSeen = existing.FirstSeen
	if err := r.db.WithContext(ctx).Save(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

// SeenSince returns the nodes heard from after the cutoff.
func (r *NodeRepository) SeenSince(ctx context.Context, cutoff time.Time) ([]models.Node, error) {
	var nodes []models.Node
	result := r.db.WithContext(ctx).
		Where("last_seen >= ?", cutoff).
		Order("last_seen DESC").
		Find(&nodes)
	return nodes, result.Error
}

// Delete removes a node by ID.
func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Node{}, "id = ?", id).Error
}
