package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/finance-categorizer/internal/config"
	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockModel struct {
	InvokeFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockModel) Invoke(ctx context.Context, prompt string) (string, error) {
	return m.InvokeFunc(ctx, prompt)
}

// echoModel categorizes every transaction id found in the prompt as Food.
func echoModel() *mockModel {
	return &mockModel{InvokeFunc: func(_ context.Context, prompt string) (string, error) {
		var entries []string
		for _, line := range strings.Split(prompt, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, `"transaction_id": "`) {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(line, `"transaction_id": "`), `",`)
			id = strings.TrimSuffix(id, `"`)
			entries = append(entries, `{"transaction_id":"`+id+`","category":"Food","subcategory":"Groceries","confidence":0.9}`)
		}
		return `{"categorizedTransactions":[` + strings.Join(entries, ",") + `]}`, nil
	}}
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "uploads", "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "uploads", "u1", "jan.csv"),
		[]byte("Date,Amount,Merchant,Description\n2024-01-02,-3.50,Tesco,Milk\n2024-01-03,-9.99,Aldi,Bread\n"), 0o644))

	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	cfg.Source.LocalRoot = root
	return cfg
}

func TestApp_RunEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NotNil(t, a.TaxonomyWriter)
	require.NoError(t, a.TaxonomyWriter.Put(ctx, "u1", []domain.CategoryPair{{Category: "Food", Subcategory: "Groceries"}}))

	outcome, err := a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	require.NoError(t, err)
	assert.Len(t, outcome.TransactionIDs, 2)
	assert.Len(t, outcome.Completed, 2)

	done, err := a.Records.FindByUserAndStatus(ctx, "u1", domain.StatusComplete)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestApp_RunSameFileTwice(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, a.TaxonomyWriter.Put(ctx, "u1", []domain.CategoryPair{{Category: "Food", Subcategory: "Groceries"}}))

	first, err := a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	require.NoError(t, err)
	second, err := a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	require.NoError(t, err)

	assert.Equal(t, first.TransactionIDs, second.TransactionIDs)
	assert.ElementsMatch(t, first.TransactionIDs, second.Stale)

	done, err := a.Records.FindByUserAndStatus(ctx, "u1", domain.StatusComplete)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestApp_DefaultTaxonomy(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.DefaultTaxonomy.Enabled = true
	cfg.DefaultTaxonomy.Categories = []domain.CategoryGroup{{Category: "Food", Subcategories: []string{"Groceries"}}}

	a, err := New(ctx, cfg, WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)

	outcome, err := a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	require.NoError(t, err)
	assert.Len(t, outcome.Completed, 2)
}

func TestApp_RunWithoutTaxonomy(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)

	_, err = a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	assert.ErrorIs(t, err, domain.ErrTaxonomyAbsent)
	assert.False(t, domain.IsRetryable(err))
}

func TestApp_RunRejectsBadURI(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)

	_, err = a.Run(ctx, "u1", "s3://bucket/key")
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestApp_JobHandler(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), WithModel(echoModel()))
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, a.TaxonomyWriter.Put(ctx, "u1", []domain.CategoryPair{{Category: "Food", Subcategory: "Groceries"}}))

	handler := a.JobHandler()

	job := &jobs.CategorizeFileJob{JobID: "j1", UserID: "u1", SourceURI: "gs://uploads/u1/jan.csv"}
	require.NoError(t, handler(ctx, job))
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Transactions)
	assert.Equal(t, 2, job.Result.Completed)

	failing := &jobs.CategorizeFileJob{JobID: "j2", UserID: "u1", SourceURI: "gs://uploads/u1/missing.csv"}
	err = handler(ctx, failing)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestApp_ModelFailureMarksRecordsFailed(t *testing.T) {
	ctx := context.Background()
	model := &mockModel{InvokeFunc: func(context.Context, string) (string, error) {
		return "", errors.Join(domain.ErrModelInvocation, errors.New("503"))
	}}
	a, err := New(ctx, memoryConfig(t), WithModel(model))
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, a.TaxonomyWriter.Put(ctx, "u1", []domain.CategoryPair{{Category: "Food"}}))

	_, err = a.Run(ctx, "u1", "gs://uploads/u1/jan.csv")
	assert.ErrorIs(t, err, domain.ErrModelInvocation)

	failed, err := a.Records.FindByUserAndStatus(ctx, "u1", domain.StatusCategorizationFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "cassandra"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
