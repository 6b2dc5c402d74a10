package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuery(t *testing.T) {
	rules := []CategoryRule{
		{Name: "billing", Keywords: []string{"invoice", "refund"}, Sources: []string{"billing-kb"}},
		{Name: "hr", Keywords: []string{"vacation", "sick leave"}, Sources: []string{"hr-handbook", "hr-tickets"}},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"first rule wins", "I need a refund for this invoice", []string{"billing-kb"}},
		{"case insensitive", "How many VACATION days do I get", []string{"hr-handbook", "hr-tickets"}},
		{"no match", "what is the wifi password", nil},
		{"rule order decides overlap", "refund my vacation booking", []string{"billing-kb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuery(tt.query, rules))
		})
	}
}

func TestClassifyQuery_NoRules(t *testing.T) {
	assert.Nil(t, ClassifyQuery("anything", nil))
}
