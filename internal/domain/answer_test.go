package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-live-service/internal/domain"
)

func TestAnswerUnmarshal(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    domain.Answer
		wantErr bool
	}{
		"null is no answer":       {input: `null`, want: domain.NoAnswer()},
		"number is single":        {input: `2`, want: domain.SingleAnswer(2)},
		"letter is single":        {input: `"c"`, want: domain.SingleAnswer(2)},
		"array is multi":          {input: `[3, 1, 1]`, want: domain.MultiAnswer(1, 3)},
		"letters in array":        {input: `["A", "D"]`, want: domain.MultiAnswer(0, 3)},
		"negative index rejected": {input: `-1`, wantErr: true},
		"unknown letter rejected": {input: `"AB"`, wantErr: true},
		"object is not an answer": {input: `{"x":1}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var got domain.Answer
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want.IsNone(), got.IsNone())
			assert.Equal(t, tc.want.IsMulti(), got.IsMulti())
			assert.Equal(t, tc.want.Indexes(), got.Indexes())
		})
	}
}

func TestAnswerMarshalShape(t *testing.T) {
	raw, err := json.Marshal(struct {
		None   domain.Answer `json:"none"`
		Single domain.Answer `json:"single"`
		Multi  domain.Answer `json:"multi"`
	}{domain.NoAnswer(), domain.SingleAnswer(1), domain.MultiAnswer(2, 0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"none":null,"single":1,"multi":[0,2]}`, string(raw))
}

func TestSameSelection(t *testing.T) {
	assert.True(t, domain.SingleAnswer(1).SameSelection(domain.MultiAnswer(1)))
	assert.True(t, domain.MultiAnswer(0, 2).SameSelection(domain.MultiAnswer(2, 0)))
	assert.False(t, domain.MultiAnswer(0, 2).SameSelection(domain.MultiAnswer(0)))
	assert.False(t, domain.NoAnswer().SameSelection(domain.NoAnswer()))
}

func TestAnswerText(t *testing.T) {
	opts := []string{"Red", "Green", "Blue"}
	assert.Equal(t, "Red, Blue", domain.MultiAnswer(2, 0).Text(opts))
	assert.Equal(t, "Green", domain.SingleAnswer(1).Text(opts))
	assert.Equal(t, "", domain.SingleAnswer(7).Text(opts))
}
