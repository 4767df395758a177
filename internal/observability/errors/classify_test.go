package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/blog-ueditor/export-api/internal/errors"
	"github.com/blog-ueditor/export-api/internal/fetch"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain errorString", goerrors.New("boom"), "errors_errorstring"},
		{"fetch error", &fetch.Error{Kind: fetch.KindTimeout}, "fetch_error"},
		{"app error", apperrors.Internal("boom"), "errors_apperror"},
		{
			name: "unwraps to innermost cause",
			err:  fmt.Errorf("outer: %w", &fetch.Error{Kind: fetch.KindConnection}),
			want: "fetch_error",
		},
		{
			name: "app error wrapping fetch error",
			err:  apperrors.Wrap(&fetch.Error{Kind: fetch.KindTooLarge}, apperrors.ErrCodeInternal, "download failed"),
			want: "fetch_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
