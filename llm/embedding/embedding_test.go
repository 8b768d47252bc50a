package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/debatehub/types"
)

// embeddingServer returns vectors [index, len(text)] in reverse order to
// check that results are placed by index.
func embeddingServer(t *testing.T, batches *[]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*batches = append(*batches, len(body.Input))

		var items []string
		for i := len(body.Input) - 1; i >= 0; i-- {
			items = append(items, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,%d]}`, i, i, len(body.Input[i])))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"m","data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`, strings.Join(items, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	var batches []int
	srv := embeddingServer(t, &batches)
	p := NewOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Dimensions: 2, MaxBatch: 2}, srv.Client(), nil)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, batches)
	assert.Equal(t, [][]float64{{0, 1}, {1, 2}, {0, 3}}, vecs)
	assert.Equal(t, 2, p.Dimensions())
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	var batches []int
	srv := embeddingServer(t, &batches)
	p := NewOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL + "/v1/"}, srv.Client(), nil)

	vec, err := p.EmbedQuery(context.Background(), "freemium")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 8}, vec)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.Equal(t, types.ErrEmptyInput, types.GetErrorCode(err))
}
