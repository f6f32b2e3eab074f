package imagesearch

const (
	// Default provider (Pexels-compatible search API)
	DefaultBaseURL = "https://api.pexels.com/v1"

	SearchEndpoint = "/search"

	// Where the first image URL lives in a search response
	DefaultResultPath = "photos.0.src.medium"

	AuthorizationHeader = "Authorization"

	DefaultPerPage = 1
)
