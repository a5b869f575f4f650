package config

type Cors struct{}

var _ CorsConfig = Cors{}

func (Cors) GetAllowedOrigin() string {
	return GetEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, Next-Url"
}
