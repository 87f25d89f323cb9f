package repository

import (
	"database/sql"
	"time"

	"github.com/custodia/backoffice/internal/domain"
)

// TradeRepo stores trades created as authorization side effects.
type TradeRepo struct {
	db *sql.DB
}

func NewTradeRepo(db *sql.DB) *TradeRepo {
	return &TradeRepo{db: db}
}

func (r *TradeRepo) Insert(t *domain.Trade) error {
	_, err := r.db.Exec(
		`INSERT INTO trades
		(id, instruction_id, client_id, isin, side, quantity, price, status, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.InstructionID, t.ClientID, t.ISIN, t.Side,
		t.Quantity, t.Price, string(t.Status), t.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (r *TradeRepo) GetByID(id string) (*domain.Trade, error) {
	row := r.db.QueryRow(selectTrades+" WHERE id = ?", id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TradeRepo) GetByInstructionID(instructionID string) ([]domain.Trade, error) {
	rows, err := r.db.Query(selectTrades+" WHERE instruction_id = ? ORDER BY created_at", instructionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepo) List() ([]domain.Trade, error) {
	rows, err := r.db.Query(selectTrades + " ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

const selectTrades = `SELECT id, instruction_id, client_id, isin, side,
	quantity, price, status, created_at FROM trades`

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var status, createdAt string
	err := row.Scan(
		&t.ID, &t.InstructionID, &t.ClientID, &t.ISIN, &t.Side,
		&t.Quantity, &t.Price, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TradeStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// ClientRepo stores client accounts, the subjects of closure requests.
type ClientRepo struct {
	db *sql.DB
}

func NewClientRepo(db *sql.DB) *ClientRepo {
	return &ClientRepo{db: db}
}

func (r *ClientRepo) Insert(c *domain.ClientAccount) error {
	_, err := r.db.Exec(
		"INSERT INTO clients (id, name, status) VALUES (?,?,?)",
		c.ID, c.Name, string(c.Status),
	)
	return err
}

func (r *ClientRepo) GetByID(id string) (*domain.ClientAccount, error) {
	var c domain.ClientAccount
	var status string
	err := r.db.QueryRow("SELECT id, name, status FROM clients WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Status = domain.AccountStatus(status)
	return &c, nil
}

// UpdateStatus flips an account from one status to another. Returns false
// when the account was not in the expected status.
func (r *ClientRepo) UpdateStatus(id string, from, to domain.AccountStatus) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE clients SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from),
	)
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

func (r *ClientRepo) List() ([]domain.ClientAccount, error) {
	rows, err := r.db.Query("SELECT id, name, status FROM clients ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.ClientAccount
	for rows.Next() {
		var c domain.ClientAccount
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &status); err != nil {
			return nil, err
		}
		c.Status = domain.AccountStatus(status)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM clients").Scan(&n)
	return n, err
}
