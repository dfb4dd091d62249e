// Package generation turns a prompt into image bytes through one of a fixed
// set of external text-to-image providers.
package generation

// Request asks a provider for one image.
type Request struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model"`
	// Width and Height of zero mean the provider default.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Asset is a generated image held in memory until the caller persists or drops it.
type Asset struct {
	Data       []byte
	MediaType  string
	ProviderID string
}

// Shape is how a provider is called and how its answer carries the image.
type Shape int

const (
	// ShapeDirectURL is a GET whose URL encodes the prompt; the body is the image.
	ShapeDirectURL Shape = iota + 1
	// ShapeBinary is a POST whose response body is the image.
	ShapeBinary
	// ShapeJSONURL is a POST answering with JSON that points at the image.
	ShapeJSONURL
)

func (s Shape) String() string {
	switch s {
	case ShapeDirectURL:
		return "direct_url"
	case ShapeBinary:
		return "binary"
	case ShapeJSONURL:
		return "json_url"
	default:
		return "unknown"
	}
}

// Encoding is the request body format of a structured API.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingMultipart
)

// DirectConfig parameterizes a ShapeDirectURL provider.
type DirectConfig struct {
	// BaseURL is followed by the path-escaped prompt.
	BaseURL     string
	Model       string
	Width       int
	Height      int
	Enhance     bool
	NoLogo      bool
	Private     bool
	Safe        bool
	Transparent bool
}

// APIConfig parameterizes ShapeBinary and ShapeJSONURL providers.
type APIConfig struct {
	Endpoint string
	// Host is sent as the x-rapidapi-host routing header.
	Host     string
	Encoding Encoding
	Body     func(Request) map[string]any
}

// Descriptor is one catalog entry.
type Descriptor struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Quality     string `json:"quality"`
	Speed       string `json:"speed"`
	Shape       Shape  `json:"-"`

	Direct *DirectConfig `json:"-"`
	API    *APIConfig    `json:"-"`
}

const pollinationsBase = "https://image.pollinations.ai/prompt/"

func pollinations(id, model, label, desc, quality, speed string) Descriptor {
	return Descriptor{
		ID: id, Label: label, Description: desc, Quality: quality, Speed: speed,
		Shape: ShapeDirectURL,
		Direct: &DirectConfig{
			BaseURL: pollinationsBase,
			Model:   model,
			Width:   1024,
			Height:  1024,
		},
	}
}

func rapid(host, path string) (string, string) {
	return "https://" + host + path, host
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

var catalog = buildCatalog()

func buildCatalog() []Descriptor {
	freeEndpoint, freeHost := rapid("ai-image-generator-free.p.rapidapi.com", "/generate/stream")
	omniEndpoint, omniHost := rapid("omniinfer.p.rapidapi.com", "/v2/txt2img")
	dalleEndpoint, dalleHost := rapid("dall-e-34.p.rapidapi.com", "/v1/images/generations")
	posterEndpoint, posterHost := rapid("ai-text-to-image-generator-flux-free-api.p.rapidapi.com", "/aaaaaaaaaaaaaaaaaiimagegenerator/quick.php")
	altEndpoint, altHost := rapid("ai-text-to-image-generator-flux-free-api-api.p.rapidapi.com", "/aaaaaaaaaaaaaaaaaiimagegenerator/quick.php")
	genEndpoint, genHost := rapid("gen-imager.p.rapidapi.com", "/genimager/index.php")

	return []Descriptor{
		pollinations("pollinations-default", "flux", "Pollinations - Free Unlimited", "High quality images with no limits", "High", "Fast"),
		pollinations("pollinations-flux", "flux", "Pollinations - Flux", "Fast general purpose generations", "High", "Very Fast"),
		pollinations("pollinations-gptimage", "gptimage", "Pollinations - GPTImage", "Advanced prompt understanding", "Excellent", "Medium"),
		pollinations("pollinations-kontext", "kontext", "Pollinations - Kontext", "Context-aware generations", "Very High", "Medium"),
		{
			ID: "ai-image-generator-free", Label: "Free Stream", Description: "Photorealistic fantasy & nature",
			Quality: "High", Speed: "Fast", Shape: ShapeBinary,
			API: &APIConfig{Endpoint: freeEndpoint, Host: freeHost, Body: func(r Request) map[string]any {
				return map[string]any{
					"prompt":         r.Prompt,
					"negativePrompt": r.NegativePrompt,
					"guidancescale":  7.5,
					"style":          "(No style)",
				}
			}},
		},
		{
			ID: "flux-gaming-poster", Label: "Flux Poster", Description: "Poster + neon warrior aesthetics",
			Quality: "Medium", Speed: "Medium", Shape: ShapeJSONURL,
			API: &APIConfig{Endpoint: posterEndpoint, Host: posterHost, Body: func(r Request) map[string]any {
				return map[string]any{"prompt": r.Prompt, "style_id": 27, "size": "16-9"}
			}},
		},
		{
			ID: "omniinfer-meina", Label: "OmniInfer Anime", Description: "Anime studio-quality art",
			Quality: "Very High", Speed: "Medium", Shape: ShapeBinary,
			API: &APIConfig{Endpoint: omniEndpoint, Host: omniHost, Body: func(r Request) map[string]any {
				return map[string]any{
					"prompt":          r.Prompt,
					"negative_prompt": r.NegativePrompt,
					"sampler_name":    "Euler a",
					"batch_size":      1,
					"n_iter":          1,
					"steps":           20,
					"cfg_scale":       7,
					"seed":            -1,
					"height":          orDefault(r.Height, 1024),
					"width":           orDefault(r.Width, 768),
					"model_name":      "meinamix_meinaV9.safetensors",
				}
			}},
		},
		{
			ID: "dall-e-34", Label: "DALL·E 3 (Rapid)", Description: "DALL·E 3, official via RapidAPI",
			Quality: "Excellent", Speed: "Slow", Shape: ShapeJSONURL,
			API: &APIConfig{Endpoint: dalleEndpoint, Host: dalleHost, Body: func(r Request) map[string]any {
				return map[string]any{
					"prompt":  r.Prompt,
					"model":   "dall-e-3",
					"n":       1,
					"size":    "1024x1024",
					"quality": "standard",
				}
			}},
		},
		{
			ID: "flux-alt-api", Label: "Flux Alt", Description: "Alternate flux model",
			Quality: "Good", Speed: "Medium", Shape: ShapeJSONURL,
			API: &APIConfig{Endpoint: altEndpoint, Host: altHost, Body: func(r Request) map[string]any {
				return map[string]any{"prompt": r.Prompt, "style_id": 2, "size": "1-1"}
			}},
		},
		{
			ID: "gen-imager", Label: "Gen Imager", Description: "Simple, ultra-light API",
			Quality: "Low", Speed: "Fast", Shape: ShapeJSONURL,
			API: &APIConfig{Endpoint: genEndpoint, Host: genHost, Encoding: EncodingMultipart, Body: func(r Request) map[string]any {
				return map[string]any{"prompt": r.Prompt}
			}},
		},
	}
}

// Catalog returns the built-in providers in display order. The slice is a
// copy; the descriptors share their immutable configs.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a built-in provider by identifier.
func Lookup(id string) (Descriptor, bool) {
	return lookupIn(catalog, id)
}

func lookupIn(descs []Descriptor, id string) (Descriptor, bool) {
	for _, d := range descs {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}
