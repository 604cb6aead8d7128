package model

import "encoding/json"

// Platform names a publish target a plan can carry a section for.
type Platform string

const (
	PlatformBluesky Platform = "bluesky"
	PlatformYouTube Platform = "youtube"
	PlatformX       Platform = "x"
)

// Intent is the creator's short description of what the post is about.
type Intent struct {
	Focus      string   `json:"focus"`
	Audience   string   `json:"audience,omitempty"`
	Tone       string   `json:"tone,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	AddEmojis  bool     `json:"add_emojis"`
	IncludeCTA bool     `json:"include_cta"`
	CTATarget  string   `json:"cta_target,omitempty"`
}

// MediaRef describes a stored media item; the bytes live in a MediaStore.
type MediaRef struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_bytes"`
}

// Plan is a validated, platform-specific draft.
type Plan struct {
	Bluesky          *BlueskySection `json:"bluesky,omitempty"`
	YouTube          *YouTubeSection `json:"youtube,omitempty"`
	Meta             Meta            `json:"meta"`
	SelectedMediaIDs []int64         `json:"selected_media_ids"`
}

type BlueskySection struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags,omitempty"` // no '#', rendered as the final line of Text
	AltText  []string `json:"alt_text,omitempty"` // 1:1 with SelectedMediaIDs
}

type YouTubeSection struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category,omitempty"`
}

type Meta struct {
	IsTemplate bool       `json:"is_template"`
	Model      string     `json:"model,omitempty"`
	Targets    []Platform `json:"targets,omitempty"`
}

type FacetKind string

const (
	FacetLink    FacetKind = "link"
	FacetMention FacetKind = "mention"
)

// Facet marks [ByteStart, ByteEnd) of the UTF-8 encoded post text.
type Facet struct {
	ByteStart int       `json:"byte_start"`
	ByteEnd   int       `json:"byte_end"`
	Kind      FacetKind `json:"kind"`
	Target    string    `json:"target"` // URL for links, handle (no '@') for mentions
}

// ImageReport describes what the optimizer did to one published image.
type ImageReport struct {
	Index         int  `json:"index"`
	OriginalSize  int  `json:"original_size_bytes"`
	OptimizedSize int  `json:"optimized_size_bytes"`
	Width         int  `json:"width,omitempty"`
	Height        int  `json:"height,omitempty"`
	Quality       int  `json:"quality,omitempty"`
	Compressed    bool `json:"compressed"`
}

type PublishResult struct {
	URI             string        `json:"uri"`
	CID             string        `json:"cid"`
	CompressedCount int           `json:"compressed_count"`
	Images          []ImageReport `json:"images,omitempty"`
}

// --- com.atproto.server.createSession ---

type SessionReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}
type SessionResp struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// --- com.atproto.repo.uploadBlob ---

type UploadBlobResp struct {
	Blob json.RawMessage `json:"blob"`
}

// --- com.atproto.identity.resolveHandle ---

type ResolveHandleResp struct {
	DID string `json:"did"`
}

// --- com.atproto.repo.createRecord (app.bsky.feed.post) ---

type CreateRecordReq struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     PostRecord `json:"record"`
}
type PostRecord struct {
	Type      string        `json:"$type"`
	Text      string        `json:"text"`
	CreatedAt string        `json:"createdAt"`
	Facets    []RecordFacet `json:"facets,omitempty"`
	Embed     *ImagesEmbed  `json:"embed,omitempty"`
}
type RecordFacet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	DID  string `json:"did,omitempty"`
}
type ImagesEmbed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}
type EmbedImage struct {
	Alt         string          `json:"alt"`
	Image       json.RawMessage `json:"image"`
	AspectRatio *AspectRatio    `json:"aspectRatio,omitempty"`
}
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
type CreateRecordResp struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// XRPCError is the error body every XRPC endpoint returns on failure.
type XRPCError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// --- X v2 create tweet ---

type TweetReq struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}
type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}
type TweetResp struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// --- X v1.1 media/upload (simple upload) ---

type MediaUploadResp struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}
