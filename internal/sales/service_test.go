package sales

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
	"github.com/angelmondragon/stockledger-backend/internal/stock"
	"github.com/angelmondragon/stockledger-backend/internal/transactions"
	"github.com/angelmondragon/stockledger-backend/internal/users"
	"github.com/angelmondragon/stockledger-backend/pkg/db"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
)

type saleFixture struct {
	svc          Service
	transactions transactions.Service
	client       *db.Client
	product      models.Product
}

func newSaleFixture(t *testing.T) saleFixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "sales-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logg)
	retry := db.RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	products := catalog.NewRepository(client.DB())
	people := users.NewRepository(client.DB())

	ledger, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(client.DB()),
		Catalog: products,
		Users:   people,
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
	txnSvc, err := transactions.NewService(transactions.ServiceParams{
		Repo:     transactions.NewRepository(client.DB()),
		Stock:    ledger,
		Invoices: invoiceSvc,
		Tx:       client,
		Outbox:   emitter,
		Retry:    retry,
		Logger:   logg,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Ledger:       ledger,
		Transactions: txnSvc,
		Invoices:     invoiceSvc,
		Catalog:      products,
		Users:        people,
		Tx:           client,
		Retry:        retry,
		Logger:       logg,
	})
	require.NoError(t, err)
	return saleFixture{
		svc:          svc,
		transactions: txnSvc,
		client:       client,
		product:      dbtest.SeedProduct(t, client.DB(), "Cooking Oil", 10),
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func strptr(v string) *string { return &v }

func (f saleFixture) inventory(t *testing.T, ownerID uuid.UUID) *models.StockBalance {
	t.Helper()
	var row models.StockBalance
	err := f.client.DB().
		Where("owner_id = ? AND product_id = ? AND bucket = ?", ownerID, f.product.ID, enums.StockBucketInventory).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &row
}

func TestDirectSaleRecordsPaidWalkInInvoice(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "10", "5.00")

	result, err := f.svc.DirectSale(context.Background(), DirectSaleInput{
		SellerID:      seller.ID,
		Items:         []ItemInput{{ProductID: f.product.ID, Quantity: dec("4")}},
		CustomerPhone: strptr("0700 000 000"),
	})
	require.NoError(t, err)

	assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("6")))

	txn := result.Transaction
	assert.True(t, txn.IsWalkIn)
	assert.Nil(t, txn.BuyerID)
	assert.Equal(t, WalkInCustomerName, txn.BuyerName)
	assert.Equal(t, enums.RoleWalkInCustomer, txn.BuyerRole)
	assert.Equal(t, enums.TransactionTypeSale, txn.Type)
	assert.True(t, txn.Subtotal.Equal(dec("20")))
	assert.True(t, txn.TotalVAT.Equal(dec("2")))
	assert.True(t, txn.TotalAmount.Equal(dec("22")))

	inv := result.Invoice
	assert.Equal(t, txn.ID, inv.TransactionID)
	assert.Equal(t, enums.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, enums.InvoicePaymentPaid, inv.PaymentStatus)
	assert.True(t, inv.DueDate.Equal(inv.GeneratedAt))
	require.NotNil(t, inv.Notes)
	assert.Equal(t, "Walk-in customer sale. Phone: 0700 000 000", *inv.Notes)
}

func TestDirectSaleUsesOverridePriceAndCustomerName(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "3", "5.00")

	price := dec("6.00")
	result, err := f.svc.DirectSale(context.Background(), DirectSaleInput{
		SellerID:     seller.ID,
		Items:        []ItemInput{{ProductID: f.product.ID, Quantity: dec("3"), UnitPrice: &price}},
		CustomerName: strptr("  Amina  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Amina", result.Transaction.BuyerName)
	require.Len(t, result.Transaction.Items, 1)
	assert.True(t, result.Transaction.Items[0].UnitPrice.Equal(price))
	require.NotNil(t, result.Invoice.Notes)
	assert.Equal(t, "Walk-in customer sale. Phone: N/A", *result.Invoice.Notes)

	assert.Nil(t, f.inventory(t, seller.ID), "a drained balance is deleted")
}

func TestDirectSaleShortStockChangesNothing(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "2", "5.00")

	_, err := f.svc.DirectSale(context.Background(), DirectSaleInput{
		SellerID: seller.ID,
		Items:    []ItemInput{{ProductID: f.product.ID, Quantity: dec("3")}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, stock.ReasonInsufficientStock, stock.Reason(err))
	assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("2")))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDirectSaleRequiresInventoryRole(t *testing.T) {
	f := newSaleFixture(t)
	consumer := dbtest.SeedUser(t, f.client.DB(), "Consumer", enums.RoleBuyer)

	_, err := f.svc.DirectSale(context.Background(), DirectSaleInput{
		SellerID: consumer.ID,
		Items:    []ItemInput{{ProductID: f.product.ID, Quantity: dec("1")}},
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestDirectSaleValidation(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	low := dec("0.001")
	item := ItemInput{ProductID: f.product.ID, Quantity: dec("1")}

	cases := []struct {
		name  string
		input DirectSaleInput
		code  pkgerrors.Code
	}{
		{"missing seller", DirectSaleInput{Items: []ItemInput{item}}, pkgerrors.CodeUnauthorized},
		{"no items", DirectSaleInput{SellerID: seller.ID}, pkgerrors.CodeValidation},
		{"zero quantity", DirectSaleInput{SellerID: seller.ID, Items: []ItemInput{{ProductID: f.product.ID}}}, pkgerrors.CodeValidation},
		{"low price", DirectSaleInput{SellerID: seller.ID, Items: []ItemInput{{ProductID: f.product.ID, Quantity: dec("1"), UnitPrice: &low}}}, pkgerrors.CodeValidation},
		{"duplicate product", DirectSaleInput{SellerID: seller.ID, Items: []ItemInput{item, item}}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.DirectSale(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, tc.code), "got %v", err)
		})
	}
}

func TestCancelledDirectSaleRestoresInventory(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "10", "5.00")

	result, err := f.svc.DirectSale(context.Background(), DirectSaleInput{
		SellerID: seller.ID,
		Items:    []ItemInput{{ProductID: f.product.ID, Quantity: dec("4")}},
	})
	require.NoError(t, err)

	_, err = f.transactions.CancelTransaction(context.Background(), result.Transaction.ID, seller.ID)
	require.NoError(t, err)
	assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("10")))
}

func (f saleFixture) balance(t *testing.T, ownerID, productID uuid.UUID, bucket enums.StockBucket) *models.StockBalance {
	t.Helper()
	var row models.StockBalance
	err := f.client.DB().
		Where("owner_id = ? AND product_id = ? AND bucket = ?", ownerID, productID, bucket).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &row
}

func TestSellToAccountMovesStockAndInvoicesOnTerms(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Valley Wholesale", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "50", "8.00")

	resale := dec("12.50")
	result, err := f.svc.SellToAccount(context.Background(), AccountSaleInput{
		SellerID: seller.ID,
		BuyerID:  buyer.ID,
		Items:    []AccountItemInput{{ProductID: f.product.ID, Quantity: dec("20"), BuyerUnitPrice: &resale}},
	})
	require.NoError(t, err)

	assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("30")))
	bought := f.balance(t, buyer.ID, f.product.ID, enums.StockBucketInventory)
	require.NotNil(t, bought)
	assert.True(t, bought.Quantity.Equal(dec("20")))
	assert.True(t, bought.UnitPrice.Equal(resale))

	txn := result.Transaction
	assert.False(t, txn.IsWalkIn)
	require.NotNil(t, txn.BuyerID)
	assert.Equal(t, buyer.ID, *txn.BuyerID)
	assert.Equal(t, enums.RoleRetailer, txn.BuyerRole)
	assert.Nil(t, txn.OrderID)
	require.Len(t, txn.Items, 1)
	assert.True(t, txn.Items[0].UnitPrice.Equal(dec("8")), "sale price defaults to the seller's balance price")

	inv := result.Invoice
	assert.Equal(t, txn.ID, inv.TransactionID)
	assert.Equal(t, enums.InvoiceStatusGenerated, inv.Status)
	assert.Equal(t, enums.InvoicePaymentPending, inv.PaymentStatus)
	assert.True(t, inv.DueDate.Equal(inv.GeneratedAt.AddDate(0, 0, invoices.DefaultDueDays)))
}

func TestSellToAccountResaleDefaultsToSalePrice(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Valley Wholesale", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Consumer", enums.RoleBuyer)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "5", "8.00")

	price := dec("9.00")
	_, err := f.svc.SellToAccount(context.Background(), AccountSaleInput{
		SellerID: seller.ID,
		BuyerID:  buyer.ID,
		Items:    []AccountItemInput{{ProductID: f.product.ID, Quantity: dec("5"), UnitPrice: &price}},
	})
	require.NoError(t, err)

	assert.Nil(t, f.inventory(t, seller.ID), "a drained balance is deleted")
	bought := f.balance(t, buyer.ID, f.product.ID, enums.StockBucketInventory)
	require.NotNil(t, bought)
	assert.True(t, bought.UnitPrice.Equal(price))
}

func TestSellToAccountRejectsForbiddenPairs(t *testing.T) {
	cases := []struct {
		name       string
		sellerRole enums.Role
		buyerRole  enums.Role
	}{
		{"retailer to distributor", enums.RoleRetailer, enums.RoleDistributor},
		{"distributor to manufacturer", enums.RoleDistributor, enums.RoleManufacturer},
		{"buyer to buyer", enums.RoleBuyer, enums.RoleBuyer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSaleFixture(t)
			seller := dbtest.SeedUser(t, f.client.DB(), "Seller", tc.sellerRole)
			buyer := dbtest.SeedUser(t, f.client.DB(), "Buyer", tc.buyerRole)
			dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "10", "5.00")

			_, err := f.svc.SellToAccount(context.Background(), AccountSaleInput{
				SellerID: seller.ID,
				BuyerID:  buyer.ID,
				Items:    []AccountItemInput{{ProductID: f.product.ID, Quantity: dec("1")}},
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "got %v", err)
			details, ok := pkgerrors.As(err).Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, ReasonRoleNotPermitted, details["reason"])

			assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("10")))
			assert.Nil(t, f.balance(t, buyer.ID, f.product.ID, enums.StockBucketInventory))
			assert.Nil(t, f.balance(t, buyer.ID, f.product.ID, enums.StockBucketRawMaterial))
		})
	}
}

func TestSellToAccountShortItemRollsBackEarlierItems(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Valley Wholesale", enums.RoleDistributor)
	buyer := dbtest.SeedUser(t, f.client.DB(), "Corner Shop", enums.RoleRetailer)
	flour := dbtest.SeedProduct(t, f.client.DB(), "Flour", 0)
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, f.product, enums.StockBucketInventory, "10", "5.00")
	dbtest.SeedBalance(t, f.client.DB(), seller.ID, flour, enums.StockBucketInventory, "2", "3.00")

	_, err := f.svc.SellToAccount(context.Background(), AccountSaleInput{
		SellerID: seller.ID,
		BuyerID:  buyer.ID,
		Items: []AccountItemInput{
			{ProductID: f.product.ID, Quantity: dec("4")},
			{ProductID: flour.ID, Quantity: dec("3")},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["item"])

	assert.True(t, f.inventory(t, seller.ID).Quantity.Equal(dec("10")))
	assert.True(t, f.balance(t, seller.ID, flour.ID, enums.StockBucketInventory).Quantity.Equal(dec("2")))
	assert.Nil(t, f.balance(t, buyer.ID, f.product.ID, enums.StockBucketInventory))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSellToAccountValidation(t *testing.T) {
	f := newSaleFixture(t)
	seller := dbtest.SeedUser(t, f.client.DB(), "Valley Wholesale", enums.RoleDistributor)
	low := dec("0.001")
	item := AccountItemInput{ProductID: f.product.ID, Quantity: dec("1")}

	cases := []struct {
		name  string
		input AccountSaleInput
		code  pkgerrors.Code
	}{
		{"missing seller", AccountSaleInput{BuyerID: uuid.New(), Items: []AccountItemInput{item}}, pkgerrors.CodeUnauthorized},
		{"missing buyer", AccountSaleInput{SellerID: seller.ID, Items: []AccountItemInput{item}}, pkgerrors.CodeValidation},
		{"self sale", AccountSaleInput{SellerID: seller.ID, BuyerID: seller.ID, Items: []AccountItemInput{item}}, pkgerrors.CodeValidation},
		{"no items", AccountSaleInput{SellerID: seller.ID, BuyerID: uuid.New()}, pkgerrors.CodeValidation},
		{"low resale price", AccountSaleInput{SellerID: seller.ID, BuyerID: uuid.New(), Items: []AccountItemInput{{ProductID: f.product.ID, Quantity: dec("1"), BuyerUnitPrice: &low}}}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SellToAccount(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, tc.code), "got %v", err)
		})
	}
}
