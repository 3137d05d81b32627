// Package repository stores reservation aggregates.  Storage failures that
// callers can act on are translated into model errors here so handlers
// never inspect driver-specific values: lock contention and duplicate keys
// become conflicts, missing rows become not-found errors.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// MySQL server error numbers the store reacts to.
const (
    mysqlErrDuplicateEntry  = 1062
    mysqlErrLockWaitTimeout = 1205
    mysqlErrDeadlock        = 1213
)

// classify maps driver errors onto the model taxonomy.  Errors that are
// already model errors, and errors it does not recognise, are returned
// unchanged.
func classify(err error) error {
    if err == nil {
        return nil
    }
    if model.KindOf(err) != "" {
        return err
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        switch me.Number {
        case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
            return model.Wrap(model.KindConflict, "reservation changed concurrently, retry", err)
        case mysqlErrDuplicateEntry:
            return model.Wrap(model.KindConflict, "reservation already exists", err)
        }
    }
    return err
}

func notFound(id string) error {
    return model.Errorf(model.KindNotFound, "reservation %s not found", id)
}
