package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uniqueRole struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

func TestIsDuplicateKeyErr(t *testing.T) {
	conn, err := NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&uniqueRole{}))

	require.NoError(t, conn.Create(&uniqueRole{ID: 1, Name: "admin"}).Error)
	err = conn.Create(&uniqueRole{ID: 2, Name: "admin"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("create role: %w", err)))

	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "roles_name_key" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062 (23000): Duplicate entry 'admin'")))
	assert.False(t, IsDuplicateKeyErr(gorm.ErrRecordNotFound))
	assert.False(t, IsDuplicateKeyErr(nil))
}
