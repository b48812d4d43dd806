package env

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found near the working directory.
// Containerized deployments run without one; GetEnv then falls through to the
// process environment.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From app/* packages to project root
		"../../../.env", // From internal/pkg/* packages
	}

	for _, envFile := range envFiles {
		if vars, err := godotenv.Read(envFile); err == nil {
			Env = vars
			return
		}
	}

	log.Println("No .env file found, relying on process environment")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
