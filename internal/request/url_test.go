package request

import "testing"

func TestJoinBaseURL(t *testing.T) {
	cases := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "plain join",
			base: "https://api.example.com",
			path: "/items",
			want: "https://api.example.com/items",
		},
		{
			name: "single repeated segment elided",
			base: "https://api.example.com/v1",
			path: "/v1/items",
			want: "https://api.example.com/v1/items",
		},
		{
			name: "multi segment prefix elided",
			base: "https://api.example.com/api/v1",
			path: "/api/v1/items",
			want: "https://api.example.com/api/v1/items",
		},
		{
			name: "partial overlap elided",
			base: "https://api.example.com/api/v1",
			path: "/v1/items",
			want: "https://api.example.com/api/v1/items",
		},
		{
			name: "no overlap",
			base: "https://api.example.com/api/v1",
			path: "/items",
			want: "https://api.example.com/api/v1/items",
		},
		{
			name: "trailing slash on base",
			base: "https://api.example.com/",
			path: "/items",
			want: "https://api.example.com/items",
		},
		{
			name: "empty path",
			base: "https://api.example.com/v2",
			path: "",
			want: "https://api.example.com/v2",
		},
		{
			name: "path identical to base suffix",
			base: "https://api.example.com/v1",
			path: "/v1",
			want: "https://api.example.com/v1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := JoinBaseURL(tc.base, tc.path); got != tc.want {
				t.Fatalf("JoinBaseURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
			}
		})
	}
}
