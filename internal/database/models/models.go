// Package models contains the database model definitions.
package models

import (
	"time"
)

// Node is an Art-Net node observed via ArtPollReply.
// Table: nodes
type Node struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	Address    string    `gorm:"column:address;uniqueIndex" json:"address"`
	Port       int       `gorm:"column:port" json:"port"`
	ShortName  string    `gorm:"column:short_name" json:"shortName"`
	LongName   string    `gorm:"column:long_name" json:"longName"`
	NodeReport string    `gorm:"column:node_report" json:"nodeReport"`
	MAC        string    `gorm:"column:mac" json:"mac"`
	Style      int       `gorm:"column:style" json:"style"`
	NumPorts   int       `gorm:"column:num_ports" json:"numPorts"`
	FirstSeen  time.Time `gorm:"column:first_seen;autoCreateTime" json:"firstSeen"`
	LastSeen   time.Time `gorm:"column:last_seen" json:"lastSeen"`
}

func (Node) TableName() string { return "nodes" }

// Setting is a persisted key/value pair, such as the configured broadcast
// address.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Key       string    `gorm:"column:key;uniqueIndex" json:"key"`
	Value     string    `gorm:"column:value" json:"value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Setting) TableName() string { return "settings" }
