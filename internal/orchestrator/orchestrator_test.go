package orchestrator_test

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/nrms/data-bridge/internal/acquisition"
	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/docstore"
	"github.com/nrms/data-bridge/internal/lineage"
	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/internal/orchestrator"
	"github.com/nrms/data-bridge/internal/reporting"
)

type staticCredentials struct{ password, salt string }

func (s staticCredentials) GetCredentials(_ context.Context, _ string) (string, string, error) {
	return s.password, s.salt, nil
}

func encryptBlob(t *testing.T, plaintext []byte, password, salt string) []byte {
	t.Helper()

	key := pbkdf2.Key([]byte(password), []byte(salt), 100000, 32, sha256.New)

	iv := make([]byte, aes.BlockSize)
	_, err := rand.Read(iv)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(ciphertext)

	out := append(append([]byte{}, iv...), ciphertext...)
	out = append(out, mac.Sum(nil)...)

	return out
}

func TestOrchestratorStartRunsAcquisitionThenIngestion(t *testing.T) {
	ctx := context.Background()

	plaintext := []byte("REGION,FARM_ID,NAME,CHANGE_TYPE\nNORTH,F001,Alpha,I\nSOUTH,F002,Beta,I\n")
	blob := encryptBlob(t, plaintext, "hunter2", "salt-value")

	externalDir := t.TempDir()
	external, err := objectstore.NewLocalStore(externalDir)
	require.NoError(t, err)

	internalDir := t.TempDir()
	internal, err := objectstore.NewLocalStore(internalDir)
	require.NoError(t, err)

	key := "exports/farms/FARM_20260730_20260730090000.csv.enc"
	w, err := external.OpenWrite(ctx, key, "application/octet-stream")
	require.NoError(t, err)
	_, err = w.Write(blob)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dataset := catalogue.DatasetDefinition{
		Name:              "farms",
		FilePrefixFormat:  "exports/farms/FARM_{date}",
		DatePattern:       "20060102",
		DatetimePattern:   "20060102150405",
		PrimaryKeyHeaders: []string{"REGION", "FARM_ID"},
		ChangeTypeHeader:  "CHANGE_TYPE",
	}
	registry, err := catalogue.NewRegistry([]catalogue.DatasetDefinition{dataset})
	require.NoError(t, err)

	externalCatalogue := catalogue.New(registry, external)

	db := docstore.NewMemoryDatabase()
	reports := reporting.New(db)
	lineageStore := lineage.New(db)
	creds := staticCredentials{password: "hunter2", salt: "salt-value"}

	acquisitionPipeline := acquisition.New(externalCatalogue, external, internal, creds, reports, nil)

	orch := orchestrator.New(reports, acquisitionPipeline, registry, internal, db, lineageStore, nil, ',')

	err = orch.Start(ctx, "import-1", "external")
	require.NoError(t, err)

	docs := db.Docs("farms")
	require.Len(t, docs, 2)
	require.Equal(t, false, docs["NORTH__F001"]["is_deleted"])

	reportDocs := db.Docs("import_reports")
	require.Equal(t, "Completed", reportDocs["import-1"]["status"])
}
