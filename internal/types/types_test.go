package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want NameList
	}{
		{"array", `{"authors":["Ann Leckie"," Iain Banks "]}`, NameList{"Ann Leckie", "Iain Banks"}},
		{"comma string", `{"authors":"Ann Leckie, Iain Banks,,"}`, NameList{"Ann Leckie", "Iain Banks"}},
		{"single", `{"authors":"Ann Leckie"}`, NameList{"Ann Leckie"}},
		{"duplicates collapse", `{"authors":["A","B","A"]}`, NameList{"A", "B"}},
		{"null", `{"authors":null}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Authors NameList `json:"authors"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))
			assert.Equal(t, tt.want, body.Authors)
		})
	}
}

func TestNameListRejectsObjects(t *testing.T) {
	var body struct {
		Authors NameList `json:"authors"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"authors":{"a":1}}`), &body))
}

func TestFlexInt(t *testing.T) {
	var body struct {
		IssueTime *FlexInt `json:"issue_time"`
		Rating    FlexInt  `json:"rating"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"issue_time":"5","rating":4}`), &body))
	require.NotNil(t, body.IssueTime)
	assert.Equal(t, 5, body.IssueTime.Int())
	assert.Equal(t, 4, *body.IssueTime.IntPtr()-1)

	body.IssueTime = nil
	require.NoError(t, json.Unmarshal([]byte(`{"rating":" 3 "}`), &body))
	assert.Nil(t, body.IssueTime.IntPtr())
	assert.Equal(t, 3, body.Rating.Int())

	assert.Error(t, json.Unmarshal([]byte(`{"rating":"three"}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"rating":true}`), &body))

	out, err := json.Marshal(FlexInt(7))
	require.NoError(t, err)
	assert.Equal(t, "7", string(out))
}

func TestCustomError(t *testing.T) {
	err := NewError(409, "library.conflict", "isbn already exists")
	assert.Equal(t, "409: isbn already exists [type: library.conflict]", err.Error())
}

func TestCustomErrorUnwrap(t *testing.T) {
	cause := errors.New("forbidden: librarian only")
	err := WrapError(403, "auth.librarian", cause)

	assert.Equal(t, "403: forbidden: librarian only [type: auth.librarian]", err.Error())
	assert.ErrorIs(t, err, cause)

	var custom *CustomError
	require.ErrorAs(t, fmt.Errorf("route: %w", err), &custom)
	assert.Equal(t, 403, custom.Code)
	assert.Nil(t, NewError(401, "auth.required", "Sign in required").Unwrap())
}
