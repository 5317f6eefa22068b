package mediaindex

import "testing"

func TestResolve(t *testing.T) {
	x := NewIndex()
	x.Images["generated_image_1"] = "https://cdn/one.png"
	x.Images["abc123"] = "https://cdn/abc123.png"
	x.Videos["generated_video_1"] = Video{URL: "https://cdn/clip.mp4", Size: "720p"}
	x.Links["link_1"] = "https://example.com"

	tests := []struct {
		name string
		in   string
		opts ResolveOptions
		want string
	}{
		{
			name: "bracketed image",
			in:   "Here: [IMAGE_ID:generated_image_1]",
			want: "Here: ![](https://cdn/one.png)",
		},
		{
			name: "image as url",
			in:   "[IMAGE_ID:abc123]",
			opts: ResolveOptions{ImagesAsURL: true},
			want: "https://cdn/abc123.png",
		},
		{
			name: "plain tokens",
			in:   "see LINK_ID:link_1 and VIDEO_ID:generated_video_1",
			want: "see https://example.com and https://cdn/clip.mp4",
		},
		{
			name: "plain token inside a word is ignored",
			in:   "fooIMAGE_ID:abc123",
			want: "fooIMAGE_ID:abc123",
		},
		{
			name: "unresolved removed",
			in:   "a [IMAGE_ID:missing] b IMAGE_ID:gone",
			want: "a  b ",
		},
		{
			name: "unresolved kept",
			in:   "a [IMAGE_ID:missing] b IMAGE_ID:gone",
			opts: ResolveOptions{Unresolved: KeepUnresolved},
			want: "a [IMAGE_ID:missing] b IMAGE_ID:gone",
		},
		{
			name: "fenced code untouched",
			in:   "[LINK_ID:link_1]\n```\n[LINK_ID:link_1]\n```\nLINK_ID:link_1",
			want: "https://example.com\n```\n[LINK_ID:link_1]\n```\nhttps://example.com",
		},
		{
			name: "no tokens",
			in:   "plain text",
			want: "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.in, x, tt.opts); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
