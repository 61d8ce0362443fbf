// internal/storage/sqlite.go
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"meal-scale/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// dsn carries the pragmas in the connection string so the driver applies
// them to every pooled connection, not only the first.
func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(10000)")
	if dbPath != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + dbPath + "?" + q.Encode()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        closed_at TEXT NOT NULL,
        total_weight_g REAL NOT NULL,
        kcal REAL NOT NULL,
        created_at TEXT NOT NULL,
        source TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS dishes (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        meal_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS ingredients (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        dish_id INTEGER NOT NULL,
        position INTEGER NOT NULL,
        group_id INTEGER NOT NULL,
        group_name TEXT NOT NULL,
        weight_g REAL NOT NULL,
        carb_g REAL NOT NULL,
        lipid_g REAL NOT NULL,
        protein_g REAL NOT NULL,
        kcal REAL NOT NULL,
        FOREIGN KEY (dish_id) REFERENCES dishes(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_meals_closed_at ON meals(closed_at);
    CREATE INDEX IF NOT EXISTS idx_dishes_meal_id ON dishes(meal_id);
    CREATE INDEX IF NOT EXISTS idx_ingredients_dish_id ON ingredients(dish_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// MealID derives a stable id from the closing time and the meal's
// (group, weight) records. A meal resent after a lost acknowledgment maps to
// the same id; two different meals closed in the same second, or with an
// unreadable FIN-COMIDA, do not.
func MealID(m *models.Meal) string {
	if m.ID != "" {
		return m.ID
	}
	if m.ClosedAt == nil {
		return ""
	}
	h := sha256.New()
	for _, d := range m.Dishes {
		fmt.Fprint(h, "|")
		for _, ing := range d.Ingredients {
			fmt.Fprintf(h, "%d,%.2f;", ing.Group.ID, ing.WeightG)
		}
	}
	return fmt.Sprintf("meal_%d_%s", m.ClosedAt.Unix(), hex.EncodeToString(h.Sum(nil))[:12])
}

// SaveMeals stores closed meals in one transaction. Meals already stored
// are skipped. Identical meals within one batch are distinct meals and get
// an occurrence suffix, which a resend of the same batch reproduces.
func (s *SQLiteStorage) SaveMeals(ctx context.Context, meals []models.Meal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	seen := make(map[string]int, len(meals))
	for i := range meals {
		meal := &meals[i]
		if meal.ClosedAt == nil {
			return fmt.Errorf("meal %d is not closed", i)
		}
		id := MealID(meal)
		if n := seen[id]; n > 0 {
			seen[id]++
			id = fmt.Sprintf("%s_%d", id, n)
		} else {
			seen[id] = 1
		}

		res, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO meals (id, closed_at, total_weight_g, kcal, created_at, source)
            VALUES (?, ?, ?, ?, ?, ?)
        `, id, meal.ClosedAt.UTC().Format(time.RFC3339), meal.TotalWeightG(), meal.Totals().Kcal, now, "scale")
		if err != nil {
			return fmt.Errorf("failed to insert meal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		for pos, dish := range meal.Dishes {
			dres, err := tx.ExecContext(ctx,
				`INSERT INTO dishes (meal_id, position) VALUES (?, ?)`, id, pos)
			if err != nil {
				return fmt.Errorf("failed to insert dish: %w", err)
			}
			dishID, err := dres.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read dish id: %w", err)
			}

			for ipos, ing := range dish.Ingredients {
				_, err = tx.ExecContext(ctx, `
                    INSERT INTO ingredients (dish_id, position, group_id, group_name, weight_g, carb_g, lipid_g, protein_g, kcal)
                    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                `, dishID, ipos, ing.Group.ID, ing.Group.Name, ing.WeightG,
					ing.Nutrition.CarbG, ing.Nutrition.LipidG, ing.Nutrition.ProteinG, ing.Nutrition.Kcal)
				if err != nil {
					return fmt.Errorf("failed to insert ingredient: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

// GetMeals returns meals closed between startDate and endDate (YYYY-MM-DD,
// UTC, both optional), newest first.
func (s *SQLiteStorage) GetMeals(ctx context.Context, startDate, endDate string, limit int) ([]models.Meal, error) {
	query := `
        SELECT id, closed_at
        FROM meals
        WHERE 1=1
    `
	args := []interface{}{}

	if startDate != "" {
		query += " AND DATE(closed_at) >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND DATE(closed_at) <= ?"
		args = append(args, endDate)
	}

	query += " ORDER BY closed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}

	var meals []models.Meal
	for rows.Next() {
		var meal models.Meal
		var closedAtStr string
		if err := rows.Scan(&meal.ID, &closedAtStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		closedAt, err := time.Parse(time.RFC3339, closedAtStr)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse closed_at: %w", err)
		}
		meal.Close(closedAt)
		meals = append(meals, meal)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meals: %w", err)
	}

	for i := range meals {
		if err := s.loadDishes(ctx, &meals[i]); err != nil {
			return nil, fmt.Errorf("failed to load dishes for meal %s: %w", meals[i].ID, err)
		}
	}

	return meals, nil
}

func (s *SQLiteStorage) loadDishes(ctx context.Context, meal *models.Meal) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT d.id, i.group_id, i.group_name, i.weight_g, i.carb_g, i.lipid_g, i.protein_g, i.kcal
        FROM dishes d
        LEFT JOIN ingredients i ON i.dish_id = d.id
        WHERE d.meal_id = ?
        ORDER BY d.position, i.position
    `, meal.ID)
	if err != nil {
		return fmt.Errorf("failed to query dishes: %w", err)
	}
	defer rows.Close()

	lastDish := int64(-1)
	for rows.Next() {
		var dishID int64
		var groupID sql.NullInt64
		var groupName sql.NullString
		var weight, carb, lipid, protein, kcal sql.NullFloat64

		if err := rows.Scan(&dishID, &groupID, &groupName, &weight, &carb, &lipid, &protein, &kcal); err != nil {
			return fmt.Errorf("failed to scan ingredient: %w", err)
		}
		if dishID != lastDish {
			meal.AddDish(models.Dish{})
			lastDish = dishID
		}
		if !groupID.Valid {
			continue
		}
		meal.Dishes[len(meal.Dishes)-1].Add(models.Ingredient{
			Group:     models.FoodGroup{ID: int(groupID.Int64), Name: groupName.String},
			WeightG:   weight.Float64,
			Nutrition: models.NewNutritionValue(carb.Float64, lipid.Float64, protein.Float64, kcal.Float64),
		})
	}

	return rows.Err()
}
