// Package types defines the metric representation shared by probes and exporters.
package types

import "sort"

// Point is a single data point. A Point without tags is a bare value.
type Point struct {
	Value float64  `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

// Tagged reports whether the point carries its own tags
func (p Point) Tagged() bool {
	return p.Tags != nil
}

// Results maps a dot-namespaced metric name (e.g. "hal.parsec.credits")
// to one or more data points published under that name.
type Results map[string][]Point

// Set replaces the metric with a single bare value
func (r Results) Set(name string, value float64) {
	r[name] = []Point{{Value: value}}
}

// Add appends a data point to the metric, creating it if needed
func (r Results) Add(name string, value float64, tags ...string) {
	p := Point{Value: value}
	if len(tags) > 0 {
		p.Tags = append([]string(nil), tags...)
	}
	r[name] = append(r[name], p)
}

// Init creates an empty metric so it is reported even when no point is added
func (r Results) Init(name string) {
	if _, ok := r[name]; !ok {
		r[name] = []Point{}
	}
}

// Len returns the number of metric names
func (r Results) Len() int {
	return len(r)
}

// Names returns metric names in lexical order
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy, so a consumer cannot alter the original
func (r Results) Clone() Results {
	if r == nil {
		return nil
	}
	out := make(Results, len(r))
	for name, points := range r {
		cp := make([]Point, len(points))
		for i, p := range points {
			cp[i] = Point{Value: p.Value}
			if p.Tags != nil {
				cp[i].Tags = append([]string{}, p.Tags...)
			}
		}
		out[name] = cp
	}
	return out
}
