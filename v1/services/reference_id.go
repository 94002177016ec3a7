package services

import (
	"fmt"
	"sync"
	"time"
)

const referencePrefix = "NUM_REF_FARMACIA_"

// ReferenceGenerator produces AutorizacionExterna tokens of the form
// NUM_REF_FARMACIA_{codigoFarmacia}_{yyyyMMddHHmmssSSS}.
// Timestamps are strictly increasing per generator, so two tokens from the
// same process never collide. Uniqueness across processes is not guaranteed.
type ReferenceGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewReferenceGenerator uses the local wall clock
func NewReferenceGenerator() *ReferenceGenerator {
	return NewReferenceGeneratorWithClock(time.Now)
}

// NewReferenceGeneratorWithClock allows a fixed clock in tests
func NewReferenceGeneratorWithClock(now func() time.Time) *ReferenceGenerator {
	return &ReferenceGenerator{now: now}
}

// Next returns a new reference for the resolved pharmacy code
func (g *ReferenceGenerator) Next(codigoFarmacia string) string {
	g.mu.Lock()
	t := g.now().Truncate(time.Millisecond)
	if !t.After(g.last) {
		t = g.last.Add(time.Millisecond)
	}
	g.last = t
	g.mu.Unlock()

	return fmt.Sprintf("%s%s_%s%03d", referencePrefix, codigoFarmacia, t.Format("20060102150405"), t.Nanosecond()/int(time.Millisecond))
}
