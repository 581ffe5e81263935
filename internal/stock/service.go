package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/money"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
)

var minPriceString = money.MinPrice.String()

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the stock ledger. The *Tx variants join a caller-owned
// transaction and leave conflict retries to that caller.
type Service interface {
	AdjustBalance(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	AdjustBalanceTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error)
	TransferStock(ctx context.Context, input TransferInput) (*TransferResult, error)
	TransferStockTx(ctx context.Context, tx *gorm.DB, input TransferInput) (*TransferResult, error)
	ReturnStockTx(ctx context.Context, tx *gorm.DB, input ReturnInput) error
	CheckAvailability(ctx context.Context, ownerID, productID uuid.UUID, requested decimal.Decimal) Availability
	CheckAvailabilityTx(ctx context.Context, tx *gorm.DB, ownerID, productID uuid.UUID, requested decimal.Decimal) Availability
	GetOwnerBalances(ctx context.Context, ownerID uuid.UUID, bucket *enums.StockBucket) ([]Balance, error)
}

// ServiceParams wires the ledger's collaborators.
type ServiceParams struct {
	Repo    Repository
	Catalog catalog.Reader
	Users   users.Reader
	Tx      txRunner
	Outbox  outboxPublisher
	Retry   db.RetryPolicy
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	catalog catalog.Reader
	users   users.Reader
	tx      txRunner
	outbox  outboxPublisher
	retry   db.RetryPolicy
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService builds the stock ledger with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retry := params.Retry
	if retry.Attempts == 0 {
		retry = db.DefaultRetryPolicy()
	}
	return &service{
		repo:    params.Repo,
		catalog: params.Catalog,
		users:   params.Users,
		tx:      params.Tx,
		outbox:  params.Outbox,
		retry:   retry,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) AdjustBalance(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if err := validateAdjust(input); err != nil {
		s.metrics.IncAdjustment(outcomeFor(err))
		return nil, err
	}
	var result *AdjustResult
	err := s.withRetry(ctx, "adjust_balance", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			res, err := s.AdjustBalanceTx(ctx, tx, input)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) AdjustBalanceTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (result *AdjustResult, err error) {
	defer func() { s.metrics.IncAdjustment(outcomeFor(err)) }()

	if err := validateAdjust(input); err != nil {
		return nil, err
	}
	product, err := s.catalog.WithTx(tx).GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	row, err := repo.Find(ctx, input.OwnerID, input.ProductID, input.Bucket)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock balance")
	}

	if row == nil {
		if !input.Delta.IsPositive() {
			return nil, errInvalidQuantity("quantity must be positive to open a balance")
		}
		if input.UnitPrice == nil {
			return nil, errPriceRequired()
		}
		row = &models.StockBalance{
			OwnerID:   input.OwnerID,
			ProductID: input.ProductID,
			Bucket:    input.Bucket,
			Quantity:  input.Delta,
			UnitPrice: *input.UnitPrice,
		}
		applyProduct(row, product)
		if err := repo.Insert(ctx, row); err != nil {
			return nil, err
		}
		result = &AdjustResult{Balance: ptr(FromModel(*row)), FinalQuantity: row.Quantity}
	} else {
		next := row.Quantity.Add(input.Delta)
		switch {
		case next.IsNegative():
			return nil, errInsufficientStock(input.ProductID, row.Quantity, input.Delta.Neg())
		case next.IsZero():
			if err := repo.DeleteVersioned(ctx, row); err != nil {
				return nil, err
			}
			result = &AdjustResult{Deleted: true, FinalQuantity: decimal.Zero}
		default:
			row.Quantity = next
			if input.UnitPrice != nil {
				row.UnitPrice = *input.UnitPrice
			}
			applyProduct(row, product)
			if err := repo.UpdateVersioned(ctx, row); err != nil {
				return nil, err
			}
			result = &AdjustResult{Balance: ptr(FromModel(*row)), FinalQuantity: row.Quantity}
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateStockBalance,
		AggregateID:   row.ID,
		Actor:         &outbox.ActorRef{UserID: input.OwnerID},
		Data: payloads.StockAdjustedEvent{
			OwnerID:       input.OwnerID,
			ProductID:     input.ProductID,
			Bucket:        input.Bucket,
			Delta:         input.Delta,
			FinalQuantity: result.FinalQuantity,
			UnitPrice:     row.UnitPrice,
			Deleted:       result.Deleted,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stock adjusted event")
	}
	return result, nil
}

func (s *service) TransferStock(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if err := validateTransfer(input); err != nil {
		return nil, err
	}
	var result *TransferResult
	err := s.withRetry(ctx, "transfer_stock", func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			res, err := s.TransferStockTx(ctx, tx, input)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) TransferStockTx(ctx context.Context, tx *gorm.DB, input TransferInput) (result *TransferResult, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveTransfer(outcomeFor(err), time.Since(started)) }()

	if err := validateTransfer(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	seller, err := repo.Find(ctx, input.SellerID, input.ProductID, enums.StockBucketInventory)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errSellerHasNoStock(input.ProductID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
	}
	if seller.Quantity.LessThan(input.Quantity) {
		return nil, errInsufficientStock(input.ProductID, seller.Quantity, input.Quantity)
	}

	buyerRole, err := s.users.WithTx(tx).GetUserRole(ctx, input.BuyerID)
	if err != nil {
		return nil, err
	}
	bucket := buyerRole.IncomingBucket()

	product, err := s.catalog.WithTx(tx).GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	result = &TransferResult{BuyerBucket: bucket}

	remaining := seller.Quantity.Sub(input.Quantity)
	if remaining.IsZero() {
		if err := repo.DeleteVersioned(ctx, seller); err != nil {
			return nil, err
		}
		result.SellerDeleted = true
	} else {
		seller.Quantity = remaining
		applyProduct(seller, product)
		if err := repo.UpdateVersioned(ctx, seller); err != nil {
			return nil, err
		}
	}
	result.SellerRemaining = remaining

	buyer, err := repo.Find(ctx, input.BuyerID, input.ProductID, bucket)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		buyer = &models.StockBalance{
			OwnerID:   input.BuyerID,
			ProductID: input.ProductID,
			Bucket:    bucket,
			Quantity:  input.Quantity,
			UnitPrice: input.BuyerUnitPrice,
		}
		applyProduct(buyer, product)
		if err := repo.Insert(ctx, buyer); err != nil {
			return nil, err
		}
		result.BuyerCreated = true
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer balance")
	default:
		// The buyer's own resale price is never overwritten.
		buyer.Quantity = buyer.Quantity.Add(input.Quantity)
		applyProduct(buyer, product)
		if err := repo.UpdateVersioned(ctx, buyer); err != nil {
			return nil, err
		}
	}
	result.BuyerQuantity = buyer.Quantity

	event := outbox.DomainEvent{
		EventType:     enums.EventStockTransferred,
		AggregateType: enums.AggregateStockBalance,
		AggregateID:   seller.ID,
		Actor:         &outbox.ActorRef{UserID: input.SellerID},
		Data: payloads.StockTransferredEvent{
			SellerID:        input.SellerID,
			BuyerID:         input.BuyerID,
			ProductID:       input.ProductID,
			Quantity:        input.Quantity,
			BuyerBucket:     bucket,
			SellerRemaining: result.SellerRemaining,
			BuyerQuantity:   result.BuyerQuantity,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stock transferred event")
	}
	return result, nil
}

// ReturnStockTx reverses a committed movement. The returning owner must still
// hold the goods in the bucket they arrived in.
func (s *service) ReturnStockTx(ctx context.Context, tx *gorm.DB, input ReturnInput) error {
	if input.ToOwnerID == uuid.Nil || input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner and product required")
	}
	if !input.Quantity.IsPositive() {
		return errInvalidQuantity("return quantity must be positive")
	}
	product, err := s.catalog.WithTx(tx).GetProduct(ctx, input.ProductID)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	if input.FromOwnerID != nil {
		from, err := repo.Find(ctx, *input.FromOwnerID, input.ProductID, input.FromBucket)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errInsufficientStock(input.ProductID, decimal.Zero, input.Quantity)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load returning balance")
		}
		if from.Quantity.LessThan(input.Quantity) {
			return errInsufficientStock(input.ProductID, from.Quantity, input.Quantity)
		}
		from.Quantity = from.Quantity.Sub(input.Quantity)
		if from.Quantity.IsZero() {
			err = repo.DeleteVersioned(ctx, from)
		} else {
			applyProduct(from, product)
			err = repo.UpdateVersioned(ctx, from)
		}
		if err != nil {
			return err
		}
	}

	to, err := repo.Find(ctx, input.ToOwnerID, input.ProductID, enums.StockBucketInventory)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		price := input.UnitPrice
		if price.LessThan(money.MinPrice) {
			price = money.MinPrice
		}
		to = &models.StockBalance{
			OwnerID:   input.ToOwnerID,
			ProductID: input.ProductID,
			Bucket:    enums.StockBucketInventory,
			Quantity:  input.Quantity,
			UnitPrice: price,
		}
		applyProduct(to, product)
		return repo.Insert(ctx, to)
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
	}
	to.Quantity = to.Quantity.Add(input.Quantity)
	applyProduct(to, product)
	return repo.UpdateVersioned(ctx, to)
}

// CheckAvailability reads the owner's INVENTORY balance. A missing row, or a
// read that fails, is reported as nothing available.
func (s *service) CheckAvailability(ctx context.Context, ownerID, productID uuid.UUID, requested decimal.Decimal) Availability {
	return s.CheckAvailabilityTx(ctx, nil, ownerID, productID, requested)
}

func (s *service) CheckAvailabilityTx(ctx context.Context, tx *gorm.DB, ownerID, productID uuid.UUID, requested decimal.Decimal) Availability {
	row, err := s.repo.WithTx(tx).Find(ctx, ownerID, productID, enums.StockBucketInventory)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"owner_id":   ownerID.String(),
				"product_id": productID.String(),
			})
			s.logg.Error(logCtx, "availability check failed", err)
		}
		return Availability{Sufficient: false, Available: decimal.Zero, UnitPrice: decimal.Zero}
	}
	return Availability{
		Sufficient: requested.IsPositive() && row.Quantity.GreaterThanOrEqual(requested),
		Available:  row.Quantity,
		UnitPrice:  row.UnitPrice,
	}
}

func (s *service) GetOwnerBalances(ctx context.Context, ownerID uuid.UUID, bucket *enums.StockBucket) ([]Balance, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if bucket != nil && !bucket.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid bucket")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID, bucket)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock balances")
	}
	out := make([]Balance, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	policy := s.retry
	policy.OnRetry = func(attempt int, err error) {
		s.metrics.IncRetry(operation)
		logCtx := s.logg.WithFields(ctx, map[string]any{"operation": operation, "attempt": attempt})
		s.logg.Debug(logCtx, "retrying after concurrent update: "+err.Error())
	}
	return policy.Do(ctx, fn)
}

func validateAdjust(input AdjustInput) error {
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !input.Bucket.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid bucket")
	}
	if input.Delta.IsZero() && input.UnitPrice == nil {
		return errInvalidQuantity("quantity change required unless updating price")
	}
	if !money.FitsQuantityScale(input.Delta) {
		return errInvalidQuantity("quantity supports at most 4 decimal places")
	}
	if input.UnitPrice != nil && input.UnitPrice.LessThan(money.MinPrice) {
		return errInvalidPrice()
	}
	return nil
}

func validateTransfer(input TransferInput) error {
	if input.SellerID == uuid.Nil || input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller and buyer required")
	}
	if input.SellerID == input.BuyerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller and buyer must differ")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity.LessThan(money.MinQuantity) {
		return errInvalidQuantity("transfer quantity below minimum")
	}
	if !money.FitsQuantityScale(input.Quantity) {
		return errInvalidQuantity("quantity supports at most 4 decimal places")
	}
	if input.BuyerUnitPrice.LessThan(money.MinPrice) {
		return errInvalidPrice()
	}
	return nil
}

func applyProduct(row *models.StockBalance, product *catalog.Product) {
	row.ProductName = product.Name
	row.SKU = product.SKU
	row.Unit = product.Unit
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
		return metrics.OutcomeInsufficient
	case db.IsRetryable(err), pkgerrors.Is(err, pkgerrors.CodeConcurrentUpdate):
		return metrics.OutcomeConflict
	}
	return metrics.OutcomeError
}

func ptr[T any](v T) *T { return &v }
