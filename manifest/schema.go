package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schemaSource constrains a fully defaulted manifest. Definitions are
// closed, so a misspelled section is an error.
const schemaSource = `
#Addr: =~"^[^:]*:[0-9]+$"

#Manifest: {
	project: {
		name:    string
		version: string
	}
	vm: {
		trace:         bool
		"stack-limit": int & >=1 & <=65536
	}
	cache: {
		enabled: bool
		path:    string & !=""
	}
	server: {
		"http-addr": #Addr
		"grpc-addr": #Addr
		workers:     int & >=1 & <=1024
	}
	log: {
		verbosity: int & >=-4 & <=5
		file:      string
	}
}
`

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("lox.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}

	value := ctx.Encode(m)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %s", errors.Details(err, nil))
	}
	return nil
}
