package events

import (
	"errors"
	"testing"
	"time"

	"hookfeed/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	return &Normalizer{Now: func() time.Time { return fixedNow }}
}

func mustPayload(t *testing.T, raw string) Payload {
	t.Helper()
	payload, err := DecodePayload([]byte(raw))
	require.NoError(t, err)
	return payload
}

const pullRequestOpened = `{
	"action": "opened",
	"pull_request": {
		"user": {"login": "bob"},
		"head": {"ref": "feature-x"},
		"base": {"ref": "main"},
		"created_at": "2024-01-16T14:05:00Z",
		"merged": false,
		"merged_by": null
	}
}`

const pullRequestMerged = `{
	"action": "closed",
	"pull_request": {
		"user": {"login": "bob"},
		"head": {"ref": "feature-x"},
		"base": {"ref": "main"},
		"created_at": "2024-01-16T14:05:00Z",
		"merged": true,
		"merged_at": "2024-01-17T09:00:00Z",
		"merged_by": {"login": "carol"}
	}
}`

func TestNormalizePush(t *testing.T) {
	payload := mustPayload(t, `{"pusher":{"name":"alice"},"ref":"refs/heads/main","head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`)

	record, err := testNormalizer().Normalize(CategoryPush, payload)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, storage.ActionPush, record.Action)
	assert.Equal(t, "alice", record.Author)
	assert.Equal(t, "main", record.ToBranch)
	assert.Empty(t, record.FromBranch)
	assert.Equal(t, "2024-01-15T10:30:00Z", record.Timestamp)
	assert.Equal(t, `"alice" pushed to "main" on 15 January 2024 - 10:30 AM UTC`, record.FormattedMessage)
	assert.Equal(t, fixedNow, record.CreatedAt)
	assert.Empty(t, record.ID)
}

func TestNormalizePushKeepsLastRefSegment(t *testing.T) {
	payload := mustPayload(t, `{"pusher":{"name":"alice"},"ref":"refs/heads/feature/login","head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`)

	record, err := testNormalizer().Push(payload)
	require.NoError(t, err)
	assert.Equal(t, "login", record.ToBranch)
}

func TestNormalizePushMissingFields(t *testing.T) {
	cases := map[string]string{
		"pusher.name":           `{"ref":"refs/heads/main","head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`,
		"ref":                   `{"pusher":{"name":"alice"},"head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`,
		"head_commit.timestamp": `{"pusher":{"name":"alice"},"ref":"refs/heads/main","head_commit":null}`,
	}
	for field, raw := range cases {
		t.Run(field, func(t *testing.T) {
			record, err := testNormalizer().Push(mustPayload(t, raw))
			assert.Nil(t, record)

			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, field, fieldErr.Field)
		})
	}
}

func TestNormalizePushWrongType(t *testing.T) {
	payload := mustPayload(t, `{"pusher":{"name":42},"ref":"refs/heads/main","head_commit":{"timestamp":"2024-01-15T10:30:00Z"}}`)

	record, err := testNormalizer().Push(payload)
	assert.Nil(t, record)

	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "pusher.name", fieldErr.Field)
	assert.Contains(t, fieldErr.Reason, "expected string")
}

func TestNormalizePullRequestOpened(t *testing.T) {
	record, err := testNormalizer().Normalize(CategoryPullRequest, mustPayload(t, pullRequestOpened))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, storage.ActionPullRequest, record.Action)
	assert.Equal(t, "bob", record.Author)
	assert.Equal(t, "feature-x", record.FromBranch)
	assert.Equal(t, "main", record.ToBranch)
	assert.Equal(t, "2024-01-16T14:05:00Z", record.Timestamp)
	assert.Equal(t, `"bob" submitted a pull request from "feature-x" to "main" on 16 January 2024 - 02:05 PM UTC`, record.FormattedMessage)
}

func TestNormalizePullRequestMerged(t *testing.T) {
	record, err := testNormalizer().Normalize(CategoryPullRequest, mustPayload(t, pullRequestMerged))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, storage.ActionMerge, record.Action)
	assert.Equal(t, "carol", record.Author, "merge author is the merger, not the creator")
	assert.Equal(t, "feature-x", record.FromBranch)
	assert.Equal(t, "main", record.ToBranch)
	assert.Equal(t, "2024-01-17T09:00:00Z", record.Timestamp)
	assert.Equal(t, `"carol" merged branch "feature-x" to "main" on 17 January 2024 - 09:00 AM UTC`, record.FormattedMessage)
}

func TestNormalizePullRequestIgnored(t *testing.T) {
	cases := map[string]string{
		"closed unmerged": `{"action":"closed","pull_request":{"merged":false,"user":{"login":"bob"}}}`,
		"synchronize":     `{"action":"synchronize","pull_request":{"user":{"login":"bob"}}}`,
		"reopened":        `{"action":"reopened"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			record, err := testNormalizer().PullRequest(mustPayload(t, raw))
			assert.NoError(t, err)
			assert.Nil(t, record)
		})
	}
}

func TestNormalizePullRequestMissingFields(t *testing.T) {
	cases := map[string]string{
		"action":                       `{"pull_request":{}}`,
		"pull_request.user.login":      `{"action":"opened","pull_request":{"head":{"ref":"a"},"base":{"ref":"b"},"created_at":"2024-01-16T14:05:00Z"}}`,
		"pull_request.merged":          `{"action":"closed","pull_request":{"head":{"ref":"a"}}}`,
		"pull_request.merged_by.login": `{"action":"closed","pull_request":{"merged":true,"merged_by":null,"head":{"ref":"a"},"base":{"ref":"b"},"merged_at":"2024-01-17T09:00:00Z"}}`,
		"pull_request.merged_at":       `{"action":"closed","pull_request":{"merged":true,"merged_by":{"login":"c"},"head":{"ref":"a"},"base":{"ref":"b"}}}`,
	}
	for field, raw := range cases {
		t.Run(field, func(t *testing.T) {
			record, err := testNormalizer().PullRequest(mustPayload(t, raw))
			assert.Nil(t, record)

			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, field, fieldErr.Field)
		})
	}
}

func TestNormalizeUnsupportedCategory(t *testing.T) {
	for _, category := range []string{"", "issues", "ping", "PUSH"} {
		record, err := testNormalizer().Normalize(category, Payload{})
		assert.Nil(t, record)
		assert.True(t, errors.Is(err, ErrUnsupportedCategory), "category %q", category)
	}
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.Empty(t, payload)

	_, err = DecodePayload([]byte(`{not json`))
	assert.Error(t, err)
}

func TestBranchFromRef(t *testing.T) {
	assert.Equal(t, "main", BranchFromRef("refs/heads/main"))
	assert.Equal(t, "v1.0", BranchFromRef("refs/tags/v1.0"))
	assert.Equal(t, "plain", BranchFromRef("plain"))
	assert.Equal(t, "", BranchFromRef("refs/heads/"))
}
