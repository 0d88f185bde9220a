package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitBrokersTrimsAndDropsEmpty(t *testing.T) {
	got := splitBrokers(" a:9092, b:9092 ,, c:9092")
	assert.Equal(t, []string{"a:9092", "b:9092", "c:9092"}, got)
}

func TestSplitBrokersEmptyInput(t *testing.T) {
	assert.Nil(t, splitBrokers(""))
}
