package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"contractapi/internal/model"
	"contractapi/internal/repository"
	repoMocks "contractapi/internal/repository/mocks"
	"contractapi/internal/storage"
	storeMocks "contractapi/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

// newTestService wires mocks with a deterministic clock and mint source.
func newTestService(store storage.Storage, repo repository.ContractRepository, shortIDs ...string) *contractService {
	i := 0
	return &contractService{
		store: store,
		repo:  repo,
		mint: func() (string, error) {
			if len(shortIDs) == 0 {
				return randomShortID()
			}
			s := shortIDs[i%len(shortIDs)]
			i++
			return s, nil
		},
		now: func() time.Time { return testNow },
	}
}

func TestContractService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo, "abc12345")

		r := strings.NewReader("PDF-A")
		mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "contracts/") && strings.HasSuffix(key, "/original.pdf")
		}), r, storage.PutObjectOptions{Size: 5, ContentType: "application/pdf"}).
			Return(storage.ObjectInfo{}, nil)
		mRepo.On("ShortIDExists", ctx, "abc12345").Return(false, nil)
		mRepo.On("Create", ctx, mock.MatchedBy(func(c *model.Contract) bool {
			return c.ShortID == "abc12345" &&
				c.ClientID == "C1" &&
				c.ContractType == "surgery" &&
				c.Status == model.StatusUploaded &&
				c.OriginalFilePath == "contracts/"+c.ID+"/original.pdf" &&
				c.CreatedAt.Equal(testNow)
		})).Return(func(ctx context.Context, c *model.Contract) *model.Contract { return c }, nil)

		contract, err := svc.Upload(ctx, "C1", "surgery", r, 5)

		require.NoError(t, err)
		assert.Equal(t, model.StatusUploaded, contract.Status)
		assert.Len(t, contract.ShortID, model.ShortIDLength)
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("nil reader", func(t *testing.T) {
		svc := newTestService(new(storeMocks.MockStorage), new(repoMocks.MockContractRepository))

		_, err := svc.Upload(ctx, "C1", "surgery", nil, 0)

		assert.ErrorIs(t, err, ErrReaderNil)
	})

	t.Run("storage error aborts before any row", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo, "abc12345")

		r := strings.NewReader("PDF-A")
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("storage fail"))

		_, err := svc.Upload(ctx, "C1", "surgery", r, 5)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "upload to storage: storage fail")
		mRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("insert collision triggers remint", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo, "taken123", "fresh456")

		r := strings.NewReader("PDF-A")
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).Return(storage.ObjectInfo{}, nil)
		// Pre-check misses the collision; the insert constraint catches it.
		mRepo.On("ShortIDExists", ctx, "taken123").Return(false, nil)
		mRepo.On("ShortIDExists", ctx, "fresh456").Return(false, nil)
		mRepo.On("Create", ctx, mock.MatchedBy(func(c *model.Contract) bool {
			return c.ShortID == "taken123"
		})).Return(nil, repository.ErrDuplicateShortID)
		mRepo.On("Create", ctx, mock.MatchedBy(func(c *model.Contract) bool {
			return c.ShortID == "fresh456"
		})).Return(func(ctx context.Context, c *model.Contract) *model.Contract { return c }, nil)

		contract, err := svc.Upload(ctx, "C1", "surgery", r, 5)

		require.NoError(t, err)
		assert.Equal(t, "fresh456", contract.ShortID)
		mRepo.AssertExpectations(t)
	})

	t.Run("pre-check reroll on collision", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo, "taken123", "fresh456")

		r := strings.NewReader("PDF-A")
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).Return(storage.ObjectInfo{}, nil)
		mRepo.On("ShortIDExists", ctx, "taken123").Return(true, nil)
		mRepo.On("ShortIDExists", ctx, "fresh456").Return(false, nil)
		mRepo.On("Create", ctx, mock.MatchedBy(func(c *model.Contract) bool {
			return c.ShortID == "fresh456"
		})).Return(func(ctx context.Context, c *model.Contract) *model.Contract { return c }, nil)

		contract, err := svc.Upload(ctx, "C1", "surgery", r, 5)

		require.NoError(t, err)
		assert.Equal(t, "fresh456", contract.ShortID)
	})

	t.Run("minting exhausted", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo, "taken123")

		r := strings.NewReader("PDF-A")
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).Return(storage.ObjectInfo{}, nil)
		mRepo.On("ShortIDExists", ctx, "taken123").Return(true, nil)

		_, err := svc.Upload(ctx, "C1", "surgery", r, 5)

		assert.ErrorIs(t, err, ErrMintingExhausted)
		mRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestContractService_Sign(t *testing.T) {
	ctx := context.Background()
	const id = "65d694a2-20bf-4df8-bff4-72ef9b7eeb7c"

	uploaded := func() *model.Contract {
		return &model.Contract{
			ID:               id,
			ShortID:          "abc12345",
			Status:           model.StatusUploaded,
			OriginalFilePath: "contracts/" + id + "/original.pdf",
		}
	}

	t.Run("happy path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo)

		r := strings.NewReader("PDF-B")
		signedPath := "contracts/" + id + "/signed.pdf"
		mRepo.On("FindByID", ctx, id).Return(uploaded(), nil)
		mStore.On("Put", ctx, signedPath, r, storage.PutObjectOptions{Size: 5, ContentType: "application/pdf"}).
			Return(storage.ObjectInfo{}, nil)
		signerID := "D1"
		signedAt := testNow
		mRepo.On("MarkSigned", ctx, id, signedPath, "D1", testNow).
			Return(&model.Contract{
				ID:             id,
				Status:         model.StatusSigned,
				SignedFilePath: signedPath,
				SignedAt:       &signedAt,
				SignerID:       &signerID,
			}, nil)

		contract, err := svc.Sign(ctx, id, "D1", r, 5)

		require.NoError(t, err)
		assert.Equal(t, model.StatusSigned, contract.Status)
		require.NotNil(t, contract.SignerID)
		assert.Equal(t, "D1", *contract.SignerID)
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		mRepo.On("FindByID", ctx, id).Return(nil, sql.ErrNoRows)

		_, err := svc.Sign(ctx, id, "D1", strings.NewReader("x"), 1)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already signed", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo)

		c := uploaded()
		c.Status = model.StatusSigned
		mRepo.On("FindByID", ctx, id).Return(c, nil)

		_, err := svc.Sign(ctx, id, "D1", strings.NewReader("x"), 1)

		assert.ErrorIs(t, err, ErrAlreadySigned)
		mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("storage error", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo)

		mRepo.On("FindByID", ctx, id).Return(uploaded(), nil)
		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("storage fail"))

		_, err := svc.Sign(ctx, id, "D1", strings.NewReader("x"), 1)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "upload to storage")
		mRepo.AssertNotCalled(t, "MarkSigned", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race surfaces as already signed", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(mStore, mRepo)

		mRepo.On("FindByID", ctx, id).Return(uploaded(), nil)
		mStore.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
		mRepo.On("MarkSigned", ctx, id, mock.Anything, "D1", testNow).
			Return(nil, repository.ErrStaleStatus)

		_, err := svc.Sign(ctx, id, "D1", strings.NewReader("x"), 1)

		assert.ErrorIs(t, err, ErrAlreadySigned)
	})
}

func TestContractService_Resolve(t *testing.T) {
	ctx := context.Background()
	const id = "65d694a2-20bf-4df8-bff4-72ef9b7eeb7c"

	t.Run("malformed 36-char input is not found, no lookup", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		_, err := svc.Resolve(ctx, strings.Repeat("z", 36))

		assert.ErrorIs(t, err, ErrNotFound)
		mRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		mRepo.AssertNotCalled(t, "FindByShortID", mock.Anything, mock.Anything)
	})

	t.Run("unknown uuid is not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		mRepo.On("FindByID", ctx, id).Return(nil, sql.ErrNoRows)

		_, err := svc.Resolve(ctx, id)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("short id resolves", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		mRepo.On("FindByShortID", ctx, "abc12345").
			Return(&model.Contract{ID: id, ShortID: "abc12345"}, nil)

		contract, err := svc.Resolve(ctx, "abc12345")

		require.NoError(t, err)
		assert.Equal(t, id, contract.ID)
	})

	t.Run("other lengths never reach the repository", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		for _, s := range []string{"abc", "abc123456", strings.Repeat("a", 35)} {
			_, err := svc.Resolve(ctx, s)
			assert.ErrorIs(t, err, ErrNotFound)
		}
		mRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		mRepo.AssertNotCalled(t, "FindByShortID", mock.Anything, mock.Anything)
	})

	t.Run("same contract via uuid and short id", func(t *testing.T) {
		mRepo := new(repoMocks.MockContractRepository)
		svc := newTestService(new(storeMocks.MockStorage), mRepo)

		c := &model.Contract{ID: id, ShortID: "abc12345", ClientID: "C1"}
		mRepo.On("FindByID", ctx, id).Return(c, nil)
		mRepo.On("FindByShortID", ctx, "abc12345").Return(c, nil)

		byID, err := svc.Resolve(ctx, id)
		require.NoError(t, err)
		byShort, err := svc.Resolve(ctx, "abc12345")
		require.NoError(t, err)

		assert.Equal(t, byID, byShort)
	})
}

func TestContractService_FetchLatest(t *testing.T) {
	ctx := context.Background()
	const id = "65d694a2-20bf-4df8-bff4-72ef9b7eeb7c"
	originalPath := "contracts/" + id + "/original.pdf"
	signedPath := "contracts/" + id + "/signed.pdf"

	body := func(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

	t.Run("uploaded contract serves original", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, originalPath).Return(body("PDF-A"), storage.ObjectInfo{}, nil)

		rc, kind, err := svc.FetchLatest(ctx, &model.Contract{ID: id, Status: model.StatusUploaded})

		require.NoError(t, err)
		assert.Equal(t, model.PayloadOriginal, kind)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "PDF-A", string(data))
		mStore.AssertNotCalled(t, "Get", ctx, signedPath)
	})

	t.Run("signed contract serves signed payload", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, signedPath).Return(body("PDF-B"), storage.ObjectInfo{}, nil)

		rc, kind, err := svc.FetchLatest(ctx, &model.Contract{ID: id, Status: model.StatusSigned})

		require.NoError(t, err)
		assert.Equal(t, model.PayloadSigned, kind)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "PDF-B", string(data))
	})

	t.Run("dangling signed reference degrades to original", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, signedPath).Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
		mStore.On("Get", ctx, originalPath).Return(body("PDF-A"), storage.ObjectInfo{}, nil)

		rc, kind, err := svc.FetchLatest(ctx, &model.Contract{ID: id, Status: model.StatusSigned})

		require.NoError(t, err)
		assert.Equal(t, model.PayloadOriginal, kind)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "PDF-A", string(data))
	})

	t.Run("neither payload retrievable", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, signedPath).Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
		mStore.On("Get", ctx, originalPath).Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)

		_, _, err := svc.FetchLatest(ctx, &model.Contract{ID: id, Status: model.StatusSigned})

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestContractService_FetchPayload(t *testing.T) {
	ctx := context.Background()
	const id = "65d694a2-20bf-4df8-bff4-72ef9b7eeb7c"

	t.Run("signed payload of unsigned contract is not found", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		_, err := svc.FetchPayload(ctx, &model.Contract{ID: id, Status: model.StatusUploaded}, model.PayloadSigned)

		assert.ErrorIs(t, err, ErrNotFound)
		mStore.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("missing object is not found", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, "contracts/"+id+"/original.pdf").
			Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)

		_, err := svc.FetchPayload(ctx, &model.Contract{ID: id, Status: model.StatusUploaded}, model.PayloadOriginal)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("read fault propagates", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		svc := newTestService(mStore, new(repoMocks.MockContractRepository))

		mStore.On("Get", ctx, mock.Anything).
			Return(nil, storage.ObjectInfo{}, errors.New("connection reset"))

		_, err := svc.FetchPayload(ctx, &model.Contract{ID: id, Status: model.StatusUploaded}, model.PayloadOriginal)

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "read from storage")
	})

	t.Run("unknown kind", func(t *testing.T) {
		svc := newTestService(new(storeMocks.MockStorage), new(repoMocks.MockContractRepository))

		_, err := svc.FetchPayload(ctx, &model.Contract{ID: id}, model.PayloadKind("latest"))

		assert.ErrorIs(t, err, ErrNotFound)
	})
}
