package dbutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	query, args := Finalize("SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?, ?", []interface{}{1, 2, 10, 20})
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3 OFFSET $4", query)
	require.Equal(t, []interface{}{1, 2, 20, 10}, args)

	query, _ = Finalize("INSERT INTO t (a,b) VALUES (?,?)", []interface{}{1, 2})
	require.Equal(t, "INSERT INTO t (a,b) VALUES ($1,$2)", query)
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"deadline", context.DeadlineExceeded, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"undefined table", &pq.Error{Code: "42P01"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
	require.True(t, IsConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(errors.New("x")))
}
