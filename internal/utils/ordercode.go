package utils

import (
	"fmt"
	"math/rand"
)

// OrderCodeGenerator produces human-readable order codes of the form
// ORD + yyyyMMddHHmmssSSS + 4-digit user suffix + 5-digit random suffix.
type OrderCodeGenerator struct {
	clock Clock
	intn  func(n int) int
}

func NewOrderCodeGenerator(clock Clock) *OrderCodeGenerator {
	if clock == nil {
		clock = SystemClock()
	}
	return &OrderCodeGenerator{clock: clock, intn: rand.Intn}
}

func (g *OrderCodeGenerator) Generate(userID int32) string {
	now := g.clock.Now()
	millis := now.Nanosecond() / 1_000_000
	user := int64(userID) % 10000
	if user < 0 {
		user = -user
	}
	return fmt.Sprintf("ORD%s%03d%04d%05d", now.Format("20060102150405"), millis, user, g.intn(100000))
}
