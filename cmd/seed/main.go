package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mlee/checkline-backend/config"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/db"
	"github.com/mlee/checkline-backend/pkg/util"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// catalogRow is one product line from the import workbook. A product spans
// several rows, one per price tier; the first row of a product also carries
// its initial stock.
type catalogRow struct {
	Name         string
	Category     string
	Unit         string
	TierLabel    string
	UnitAmount   float64
	Price        float64
	InitialStock float64
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <catalog_xlsx_path>")
	}
	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	fmt.Printf("Reading catalog workbook: %s\n", filePath)
	rows, err := readCatalogFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read catalog:", err)
	}
	fmt.Printf("Catalog rows to import: %d\n", len(rows))

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	if err := seed(db.GetDB(), rows); err != nil {
		log.Fatal("Seed failed:", err)
	}
	fmt.Println("Import completed successfully!")
}

func readCatalogFromXLSX(filePath string) ([]catalogRow, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows in XLSX file")
	}

	// Columns: name, category, unit, tier label, unit amount, price,
	// initial stock. First row is the header.
	var out []catalogRow
	skipped := 0
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 6 {
			skipped++
			continue
		}

		name := strings.TrimSpace(row[0])
		unit := strings.TrimSpace(row[2])
		tierLabel := strings.TrimSpace(row[3])
		if name == "" || unit == "" || tierLabel == "" {
			skipped++
			continue
		}

		unitAmount, err1 := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
		price, err2 := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
		if err1 != nil || err2 != nil || unitAmount <= 0 || price <= 0 {
			skipped++
			continue
		}

		stock := 0.0
		if len(row) > 6 {
			stock, _ = strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
		}

		out = append(out, catalogRow{
			Name:         name,
			Category:     strings.TrimSpace(row[1]),
			Unit:         unit,
			TierLabel:    tierLabel,
			UnitAmount:   unitAmount,
			Price:        price,
			InitialStock: stock,
		})
	}

	if skipped > 0 {
		fmt.Printf("Skipped %d malformed rows\n", skipped)
	}
	return out, nil
}

func seed(gormDB *gorm.DB, rows []catalogRow) error {
	return gormDB.Transaction(func(tx *gorm.DB) error {
		store := model.Store{
			Name:     "CHECKLINE Demo Store",
			Currency: "USD",
			TaxRate:  0.0875,
		}
		if err := tx.Create(&store).Error; err != nil {
			return err
		}

		locations := []model.Location{
			{StoreID: store.ID, Name: "Front Counter", Latitude: 37.7749, Longitude: -122.4194},
			{StoreID: store.ID, Name: "Annex", Latitude: 37.7793, Longitude: -122.4163},
		}
		for i := range locations {
			if err := tx.Create(&locations[i]).Error; err != nil {
				return err
			}
		}

		// One register device per location. The pairing secret is printed
		// once here and stored only as a hash.
		for i, location := range locations {
			secret := fmt.Sprintf("pair-%d-%d", store.ID, location.ID)
			hash, err := util.HashSecret(secret)
			if err != nil {
				return err
			}
			device := model.Device{
				StoreID:      store.ID,
				LocationID:   location.ID,
				Name:         fmt.Sprintf("Register %d", i+1),
				DeviceKey:    fmt.Sprintf("reg-%d-%d", store.ID, location.ID),
				KeyHash:      hash,
				Capabilities: []string{"checkout", "queue"},
			}
			if err := tx.Create(&device).Error; err != nil {
				return err
			}
			fmt.Printf("Device %s pairing secret: %s\n", device.DeviceKey, secret)
		}

		// Group tier rows by product name.
		products := make(map[string]*model.Product)
		stock := make(map[string]float64)
		for _, row := range rows {
			product, ok := products[row.Name]
			if !ok {
				product = &model.Product{
					StoreID:  store.ID,
					Name:     row.Name,
					Category: row.Category,
					Unit:     row.Unit,
				}
				if err := tx.Create(product).Error; err != nil {
					return err
				}
				products[row.Name] = product
				stock[row.Name] = row.InitialStock
			}

			tier := model.PriceTier{
				ProductID:  product.ID,
				Label:      row.TierLabel,
				UnitAmount: row.UnitAmount,
				Price:      row.Price,
			}
			if err := tx.Create(&tier).Error; err != nil {
				return err
			}
		}

		// One stock record per product at the first location, opened with a
		// received delta. On-hand is always derived from the ledger.
		for name, product := range products {
			record := model.InventoryRecord{
				StoreID:    store.ID,
				LocationID: locations[0].ID,
				ProductID:  product.ID,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			if stock[name] > 0 {
				delta := model.InventoryDelta{
					InventoryRecordID: record.ID,
					Quantity:          stock[name],
					Reason:            model.DeltaReasonReceived,
				}
				if err := tx.Create(&delta).Error; err != nil {
					return err
				}
			}
		}

		fmt.Printf("Seeded store %d with %d products\n", store.ID, len(products))
		return nil
	})
}
