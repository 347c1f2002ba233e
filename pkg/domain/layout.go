package domain

import "fmt"

// LayoutType selects how the solver derives ideal link lengths.
type LayoutType string

const (
	LayoutFlow         LayoutType = "flowLayout"
	LayoutLinkDistance LayoutType = "linkDistance"
	LayoutJaccard      LayoutType = "jaccardLinkLengths"
)

// Flow directions for LayoutFlow.
const (
	FlowDown  = "y"
	FlowRight = "x"
)

// LayoutOptions configures the layout area and the solver.
type LayoutOptions struct {
	Type               LayoutType `json:"layout_type" mapstructure:"layout_type" yaml:"layout_type" toml:"layout_type"`
	FlowDirection      string     `json:"flow_direction" mapstructure:"flow_direction" yaml:"flow_direction" toml:"flow_direction"`
	Width              float64    `json:"width" mapstructure:"width" yaml:"width" toml:"width"`
	Height             float64    `json:"height" mapstructure:"height" yaml:"height" toml:"height"`
	Pad                float64    `json:"pad" mapstructure:"pad" yaml:"pad" toml:"pad"`
	Margin             float64    `json:"margin" mapstructure:"margin" yaml:"margin" toml:"margin"`
	EdgeLength         float64    `json:"edge_length" mapstructure:"edge_length" yaml:"edge_length" toml:"edge_length"`
	AvoidOverlaps      bool       `json:"avoid_overlaps" mapstructure:"avoid_overlaps" yaml:"avoid_overlaps" toml:"avoid_overlaps"`
	HandleDisconnected bool       `json:"handle_disconnected" mapstructure:"handle_disconnected" yaml:"handle_disconnected" toml:"handle_disconnected"`
}

// DefaultLayoutOptions returns the stock 900x600 flow layout.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Type:          LayoutFlow,
		FlowDirection: FlowDown,
		Width:         900,
		Height:        600,
		Pad:           5,
		Margin:        10,
		EdgeLength:    150,
		AvoidOverlaps: true,
	}
}

// Validate checks option values the solver cannot work with.
func (o LayoutOptions) Validate() error {
	switch o.Type {
	case LayoutFlow, LayoutLinkDistance, LayoutJaccard:
	default:
		return fmt.Errorf("%w: unknown layout type %q", ErrValidation, o.Type)
	}
	if o.FlowDirection != FlowDown && o.FlowDirection != FlowRight {
		return fmt.Errorf("%w: flow direction must be %q or %q", ErrValidation, FlowDown, FlowRight)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("%w: layout area must be positive", ErrValidation)
	}
	if o.EdgeLength <= 0 {
		return fmt.Errorf("%w: edge length must be positive", ErrValidation)
	}
	return nil
}

// Center returns the middle of the layout area.
func (o LayoutOptions) Center() (float64, float64) {
	return o.Width / 2, o.Height / 2
}
