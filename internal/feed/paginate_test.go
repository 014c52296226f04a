package feed

import "testing"

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		requested int
		want      PageInfo
	}{
		{
			name: "空のフィードは空の1ページ", total: 0, requested: 1,
			want: PageInfo{Number: 1, Requested: 1, TotalPages: 1, TotalItems: 0, Size: 10},
		},
		{
			name: "空のフィードで2ページ目を要求", total: 0, requested: 2,
			want: PageInfo{Number: 1, Requested: 2, TotalPages: 1, TotalItems: 0, Size: 10},
		},
		{
			name: "ちょうど1ページ", total: 10, requested: 1,
			want: PageInfo{Number: 1, Requested: 1, TotalPages: 1, TotalItems: 10, Size: 10},
		},
		{
			name: "2ページの1ページ目", total: 11, requested: 1,
			want: PageInfo{Number: 1, Requested: 1, TotalPages: 2, TotalItems: 11, Size: 10, HasNext: true},
		},
		{
			name: "3ページの中間", total: 25, requested: 2,
			want: PageInfo{Number: 2, Requested: 2, TotalPages: 3, TotalItems: 25, Size: 10, HasPrevious: true, HasNext: true},
		},
		{
			name: "最終ページ超は最終ページに丸める", total: 25, requested: 99,
			want: PageInfo{Number: 3, Requested: 99, TotalPages: 3, TotalItems: 25, Size: 10, HasPrevious: true},
		},
		{
			name: "0は1ページ目に丸める", total: 25, requested: 0,
			want: PageInfo{Number: 1, Requested: 0, TotalPages: 3, TotalItems: 25, Size: 10, HasNext: true},
		},
		{
			name: "負数は1ページ目に丸める", total: 25, requested: -3,
			want: PageInfo{Number: 1, Requested: -3, TotalPages: 3, TotalItems: 25, Size: 10, HasNext: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Paginate(tt.total, tt.requested, 10); got != tt.want {
				t.Errorf("Paginate(%d, %d, 10) = %+v, want %+v", tt.total, tt.requested, got, tt.want)
			}
		})
	}
}

func TestPaginate_DefaultSize(t *testing.T) {
	if got := Paginate(5, 1, 0); got.Size != DefaultPageSize {
		t.Errorf("Size = %d, want %d", got.Size, DefaultPageSize)
	}
}

func TestPageInfo_Offset(t *testing.T) {
	if got := Paginate(25, 3, 10).Offset(); got != 20 {
		t.Errorf("Offset = %d, want 20", got)
	}
	if got := Paginate(0, 1, 10).Offset(); got != 0 {
		t.Errorf("Offset = %d, want 0", got)
	}
}
