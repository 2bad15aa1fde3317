package storage

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestAcceptedCount(t *testing.T) {
	tests := []struct {
		name      string
		submitted int
		rejected  int
		want      int
	}{
		{name: "none rejected", submitted: 10, rejected: 0, want: 10},
		{name: "some rejected", submitted: 10, rejected: 3, want: 7},
		{name: "all rejected", submitted: 10, rejected: 10, want: 0},
		{name: "rejection overcount clamps to zero", submitted: 5, rejected: 8, want: 0},
		{name: "empty submission", submitted: 0, rejected: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acceptedCount(tt.submitted, tt.rejected); got != tt.want {
				t.Errorf("acceptedCount(%d, %d) = %d, want %d",
					tt.submitted, tt.rejected, got, tt.want)
			}
		})
	}
}

func writeErrorsAt(indices ...int) []mongo.BulkWriteError {
	errs := make([]mongo.BulkWriteError, len(indices))
	for i, idx := range indices {
		errs[i] = mongo.BulkWriteError{WriteError: mongo.WriteError{Index: idx}}
	}
	return errs
}

func TestAcceptedIDs(t *testing.T) {
	ids := []interface{}{"a", "b", "c", "d"}

	tests := []struct {
		name     string
		rejected []mongo.BulkWriteError
		want     []interface{}
	}{
		{
			name:     "no rejections keeps all ids",
			rejected: nil,
			want:     []interface{}{"a", "b", "c", "d"},
		},
		{
			name:     "rejected indices filtered out",
			rejected: writeErrorsAt(1, 3),
			want:     []interface{}{"a", "c"},
		},
		{
			name:     "all rejected",
			rejected: writeErrorsAt(0, 1, 2, 3),
			want:     []interface{}{},
		},
		{
			name:     "out of range index ignored",
			rejected: writeErrorsAt(7),
			want:     []interface{}{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := acceptedIDs(ids, tt.rejected)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("acceptedIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}
