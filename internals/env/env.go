package env

import (
	"log"
	"strconv"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
)

type EnvStruct struct {
	HOME                  string `zog:"HOME"`
	PORT                  int    `zog:"FORGE_PORT"`
	GITHUB_TOKEN          string `zog:"GITHUB_TOKEN"`
	DATA_DIR              string `zog:"FORGE_DATA_DIR"`
	LOG_LEVEL             string `zog:"FORGE_LOG_LEVEL"`
	WEBHOOK_POLL_INTERVAL string `zog:"FORGE_WEBHOOK_POLL_INTERVAL"`
	LISTEN_ADDR           string
	LISTEN_PROT           string
	BASE_URL              string
}

var env *EnvStruct

var EnvSchema = z.Struct(z.Shape{
	"HOME":                  z.String(),
	"PORT":                  z.Int().Default(57890),
	"GITHUB_TOKEN":          z.String().Optional(),
	"DATA_DIR":              z.String().Optional().Trim(),
	"LOG_LEVEL":             z.String().Optional().Trim().OneOf([]string{"debug", "info", "warn", "error"}),
	"WEBHOOK_POLL_INTERVAL": z.String().Optional().Trim(),
})

func Get() *EnvStruct {
	if env == nil {
		env = &EnvStruct{}
		errs := EnvSchema.Parse(zenv.NewDataProvider(), env)
		if errs != nil {
			log.Fatal("[Forge] Failed to parse environment variables", errs)
		}

		env.LISTEN_PROT = "http://"
		env.LISTEN_ADDR = "localhost:" + strconv.Itoa(env.PORT)
		env.BASE_URL = env.LISTEN_PROT + env.LISTEN_ADDR
	}
	return env
}

// Reset drops the cached environment so the next Get re-reads it.
func Reset() {
	env = nil
}
