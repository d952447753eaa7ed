package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedTagsDecodesObjectForm(t *testing.T) {
	var q Quote
	err := json.Unmarshal([]byte(`{"id":1,"quote":"x","author":"y","weighted_tags":{"Life":0.8,"death":0.6}}`), &q)
	require.NoError(t, err)

	assert.Equal(t, WeightedTags{"life": 0.8, "death": 0.6}, q.WeightedTags)
}

func TestWeightedTagsDecodesListForm(t *testing.T) {
	raw := `{"id":1,"quote":"x","author":"y","weighted_tags":[
		{"tag":"life","weight":0.7,"corpus_score":0.9,"relevance":0.8},
		{"tag":"time","weight":0.4}
	]}`
	var q Quote
	require.NoError(t, json.Unmarshal([]byte(raw), &q))

	assert.Equal(t, WeightedTags{"life": 0.7, "time": 0.4}, q.WeightedTags)

	out, err := json.Marshal(q.WeightedTags)
	require.NoError(t, err)
	assert.JSONEq(t, `{"life":0.7,"time":0.4}`, string(out))
}

func TestWeightedTagsNull(t *testing.T) {
	var q Quote
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"weighted_tags":null}`), &q))
	assert.Nil(t, q.WeightedTags)
}

func TestRankedBreaksTiesLexically(t *testing.T) {
	w := WeightedTags{"time": 0.5, "art": 0.5, "life": 0.9}
	assert.Equal(t, []string{"life", "art", "time"}, w.Ranked())
}

func TestTagNamesPrefersCurated(t *testing.T) {
	q := Quote{Tags: []string{"Life", "Death", "life"}}
	assert.Equal(t, []string{"life", "death"}, q.TagNames())

	q.WeightedTags = WeightedTags{"hope": 0.3}
	assert.Equal(t, []string{"hope"}, q.TagNames())
}

func TestTopTag(t *testing.T) {
	q := Quote{WeightedTags: WeightedTags{"life": 0.9, "death": 0.6, "pithy": 1.0}}
	primary := map[string]bool{"life": true, "death": true}

	assert.Equal(t, "life", q.TopTag(func(tag string) bool { return primary[tag] }))
	assert.Equal(t, "pithy", q.TopTag(nil))
	assert.Equal(t, "", q.TopTag(func(string) bool { return false }))
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Quote{Author: "a"}).Validate())
	assert.Error(t, (&Quote{Text: "t"}).Validate())
	assert.NoError(t, (&Quote{Text: "t", Author: "a"}).Validate())
}
