package transactions

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/internal/catalog"
	"github.com/angelmondragon/stockledger-backend/internal/invoices"
	"github.com/angelmondragon/stockledger-backend/internal/lineitems"
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/pagination"
)

type recorderFixture struct {
	svc      Service
	ledger   stock.Service
	invoices invoices.Service
	client   *db.Client
	product  models.Product
	catalog  catalog.Reader
}

func newRecorderFixture(t *testing.T) recorderFixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "transactions-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)
	retry := db.RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	products := catalog.NewRepository(client.DB())

	ledger, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(client.DB()),
		Catalog: products,
		Users:   users.NewRepository(client.DB()),
		Tx:      client,
		Outbox:  emitter,
		Retry:   retry,
		Logger:  logg,
	})
	require.NoError(t, err)
	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:   invoices.NewRepository(client.DB()),
		Tx:     client,
		Outbox: emitter,
		Retry:  retry,
		Logger: logg,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Stock:    ledger,
		Invoices: invoiceSvc,
		Tx:       client,
		Outbox:   emitter,
		Retry:    retry,
		Logger:   logg,
	})
	require.NoError(t, err)
	return recorderFixture{
		svc:      svc,
		ledger:   ledger,
		invoices: invoiceSvc,
		client:   client,
		product:  dbtest.SeedProduct(t, client.DB(), "Rice", 15),
		catalog:  products,
	}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func party(u models.User) Party {
	id := u.ID
	return Party{ID: &id, Name: u.Name, Role: u.Role}
}

func (f recorderFixture) line(t *testing.T, qty, price string) models.LineItem {
	t.Helper()
	product, err := f.catalog.GetProduct(context.Background(), f.product.ID)
	require.NoError(t, err)
	return lineitems.Build(product, d(qty), d(price))
}

func (f recorderFixture) record(t *testing.T, input RecordInput) *models.Transaction {
	t.Helper()
	var out *models.Transaction
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		txn, err := f.svc.RecordTransaction(context.Background(), tx, input)
		out = txn
		return err
	}))
	return out
}

// trade moves qty through the ledger and records the matching sale with an invoice.
func (f recorderFixture) trade(t *testing.T, seller, buyer models.User, qty, price string) (*models.Transaction, *models.Invoice) {
	t.Helper()
	ctx := context.Background()
	item := f.line(t, qty, price)
	var (
		txn *models.Transaction
		inv *models.Invoice
	)
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := f.ledger.TransferStockTx(ctx, tx, stock.TransferInput{
			SellerID: seller.ID, BuyerID: buyer.ID, ProductID: f.product.ID, Quantity: d(qty), BuyerUnitPrice: d(price),
		}); err != nil {
			return err
		}
		var err error
		txn, err = f.svc.RecordTransaction(ctx, tx, RecordInput{
			Seller: party(seller),
			Buyer:  party(buyer),
			Items:  []models.LineItem{item},
			Type:   enums.TransactionTypeSale,
		})
		if err != nil {
			return err
		}
		inv, err = f.invoices.GenerateInvoice(ctx, tx, invoices.GenerateInput{Transaction: txn})
		return err
	}))
	return txn, inv
}

func (f recorderFixture) quantity(t *testing.T, owner uuid.UUID, bucket enums.StockBucket) decimal.Decimal {
	t.Helper()
	row, err := stock.NewRepository(f.client.DB()).Find(context.Background(), owner, f.product.ID, bucket)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return row.Quantity
}

func TestRecordTransactionComputesTotals(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)

	item := f.line(t, "30", "10")
	item.LineTotal = d("1")
	txn := f.record(t, RecordInput{
		Seller: party(seller),
		Buyer:  party(buyer),
		Items:  []models.LineItem{item},
		Type:   enums.TransactionTypeSale,
	})

	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	assert.True(t, txn.Subtotal.Equal(d("300")))
	assert.True(t, txn.TotalVAT.Equal(d("45")))
	assert.True(t, txn.TotalAmount.Equal(d("345")))
	assert.True(t, txn.Items[0].LineTotal.Equal(d("345")), "line totals are recomputed")

	var events int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventTransactionRecorded).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRecordTransactionValidation(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	good := f.line(t, "1", "1")
	zeroQty := f.line(t, "1", "1")
	zeroQty.Quantity = decimal.Zero

	cases := map[string]RecordInput{
		"no seller":     {Buyer: party(buyer), Items: []models.LineItem{good}, Type: enums.TransactionTypeSale},
		"no buyer":      {Seller: party(seller), Buyer: Party{Name: "x", Role: enums.RoleRetailer}, Items: []models.LineItem{good}, Type: enums.TransactionTypeSale},
		"self trade":    {Seller: party(seller), Buyer: party(seller), Items: []models.LineItem{good}, Type: enums.TransactionTypeSale},
		"no items":      {Seller: party(seller), Buyer: party(buyer), Type: enums.TransactionTypeSale},
		"bad type":      {Seller: party(seller), Buyer: party(buyer), Items: []models.LineItem{good}, Type: "GIFT"},
		"zero quantity": {Seller: party(seller), Buyer: party(buyer), Items: []models.LineItem{zeroQty}, Type: enums.TransactionTypeSale},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := f.svc.RecordTransaction(context.Background(), tx, input)
				return err
			})
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCancelTransactionReversesTrade(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "100", "10")
	txn, inv := f.trade(t, seller, buyer, "30", "10")
	ctx := context.Background()

	_, err := f.svc.CancelTransaction(ctx, txn.ID, buyer.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "got %v", err)

	got, err := f.svc.CancelTransaction(ctx, txn.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, seller.ID, *got.CancelledBy)
	require.NotNil(t, got.CancelledAt)

	assert.True(t, f.quantity(t, seller.ID, enums.StockBucketInventory).Equal(d("100")))
	assert.True(t, f.quantity(t, buyer.ID, enums.StockBucketInventory).IsZero())

	voided, err := f.invoices.Get(ctx, inv.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusCancelled, voided.Status)

	_, err = f.svc.CancelTransaction(ctx, txn.ID, seller.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestCancelTransactionPullsFromRawMaterial(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Farm", enums.RoleManufacturer)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Plant", enums.RoleManufacturer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "10", "10")
	txn, _ := f.trade(t, seller, buyer, "10", "10")
	require.True(t, f.quantity(t, buyer.ID, enums.StockBucketRawMaterial).Equal(d("10")))

	_, err := f.svc.CancelTransaction(context.Background(), txn.ID, seller.ID)
	require.NoError(t, err)
	assert.True(t, f.quantity(t, buyer.ID, enums.StockBucketRawMaterial).IsZero())
	assert.True(t, f.quantity(t, seller.ID, enums.StockBucketInventory).Equal(d("10")))
}

func TestCancelTransactionFailsWhenBuyerResold(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "50", "10")
	txn, _ := f.trade(t, seller, buyer, "20", "10")

	_, err := f.ledger.AdjustBalance(context.Background(), stock.AdjustInput{
		OwnerID: buyer.ID, ProductID: f.product.ID, Delta: d("-15"), Bucket: enums.StockBucketInventory,
	})
	require.NoError(t, err)

	_, err = f.svc.CancelTransaction(context.Background(), txn.ID, seller.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	stored, err := f.svc.Get(context.Background(), txn.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, stored.Status)
	assert.True(t, f.quantity(t, seller.ID, enums.StockBucketInventory).Equal(d("30")))
}

func TestCancelWalkInSaleRestoresSeller(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "5", "12")
	ctx := context.Background()

	_, err := f.ledger.AdjustBalance(ctx, stock.AdjustInput{
		OwnerID: seller.ID, ProductID: f.product.ID, Delta: d("-5"), Bucket: enums.StockBucketInventory,
	})
	require.NoError(t, err)
	txn := f.record(t, RecordInput{
		Seller: party(seller),
		Buyer:  Party{Name: "Walk-in Customer", Role: enums.RoleWalkInCustomer},
		Items:  []models.LineItem{f.line(t, "5", "12")},
		Type:   enums.TransactionTypeSale,
	})
	assert.True(t, txn.IsWalkIn())

	_, err = f.svc.CancelTransaction(ctx, txn.ID, seller.ID)
	require.NoError(t, err)
	assert.True(t, f.quantity(t, seller.ID, enums.StockBucketInventory).Equal(d("5")))
}

func TestStatsCountsCompletedOnly(t *testing.T) {
	f := newRecorderFixture(t)
	distributor := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	shop := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	consumer := dbtest.SeedUser(t, f.client.DB(), "Consumer", enums.RoleBuyer)
	dbtest.SeedBalance(t, f.client.DB(), distributor.ID, f.product, enums.StockBucketInventory, "100", "10")

	f.trade(t, distributor, shop, "10", "10")
	cancelled, _ := f.trade(t, distributor, shop, "1", "10")
	f.trade(t, shop, consumer, "2", "20")
	_, err := f.svc.CancelTransaction(context.Background(), cancelled.ID, distributor.ID)
	require.NoError(t, err)

	stats, err := f.svc.Stats(context.Background(), shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SalesCount)
	assert.Equal(t, int64(1), stats.PurchasesCount)
	assert.True(t, stats.SalesRevenue.Equal(d("46")), "revenue %s", stats.SalesRevenue)
	assert.True(t, stats.PurchasesExpense.Equal(d("115")), "expense %s", stats.PurchasesExpense)
	assert.True(t, stats.NetRevenue.Equal(d("-69")), "net %s", stats.NetRevenue)
	assert.Equal(t, int64(2), stats.TotalTransactions)
	assert.True(t, stats.TotalSales.Equal(d("2")), "sold %s", stats.TotalSales)
	assert.True(t, stats.TotalPurchases.Equal(d("10")), "bought %s", stats.TotalPurchases)

	idle, err := f.svc.Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, idle.TotalTransactions)
	assert.True(t, idle.TotalSales.IsZero())
	assert.True(t, idle.TotalPurchases.IsZero())
}

func TestGetAndListScopeToParties(t *testing.T) {
	f := newRecorderFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "100", "10")
	txn, _ := f.trade(t, seller, buyer, "1", "10")
	f.trade(t, seller, buyer, "1", "10")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, txn.ID, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "got %v", err)
	got, err := f.svc.Get(ctx, txn.ID, buyer.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, f.product.Name, got.Items[0].ProductName)

	page, err := f.svc.List(ctx, seller.ID, enums.TradeSideAll, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	next, err := f.svc.List(ctx, seller.ID, enums.TradeSideAll, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.NotEqual(t, page.Items[0].ID, next.Items[0].ID)

	_, err = f.svc.List(ctx, seller.ID, enums.TradeSideAll, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestListFiltersBySide(t *testing.T) {
	f := newRecorderFixture(t)
	distributor := dbtest.SeedUser(t, f.client.DB(), "Distributor", enums.RoleDistributor)
	shop := dbtest.SeedUser(t, f.client.DB(), "Shop", enums.RoleRetailer)
	consumer := dbtest.SeedUser(t, f.client.DB(), "Consumer", enums.RoleBuyer)
	dbtest.SeedBalance(t, f.client.DB(), distributor.ID, f.product, enums.StockBucketInventory, "100", "10")
	bought, _ := f.trade(t, distributor, shop, "5", "10")
	sold, _ := f.trade(t, shop, consumer, "2", "20")
	ctx := context.Background()

	sales, err := f.svc.List(ctx, shop.ID, enums.TradeSideSeller, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, sales.Items, 1)
	assert.Equal(t, sold.ID, sales.Items[0].ID)

	purchases, err := f.svc.List(ctx, shop.ID, enums.TradeSideBuyer, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, purchases.Items, 1)
	assert.Equal(t, bought.ID, purchases.Items[0].ID)

	all, err := f.svc.List(ctx, shop.ID, enums.TradeSideAll, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	_, err = f.svc.List(ctx, shop.ID, enums.TradeSide("vendor"), pagination.Params{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
