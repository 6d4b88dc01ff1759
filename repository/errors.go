package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// StoreError wraps any rejection from the catalog database.
type StoreError struct {
	Op    string // create, update, delete, ...
	Table string
	ID    string
	Err   error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		err = fmt.Errorf("%w: %s", ErrDuplicate, mysqlErr.Message)
	} else if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return &StoreError{Op: op, Table: table, ID: id, Err: err}
}

func notFound(op, table, id string) error {
	return &StoreError{Op: op, Table: table, ID: id, Err: ErrNotFound}
}

// IsNotFound reports whether err means the target row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
