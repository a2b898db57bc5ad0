// Package api 内嵌 OpenAPI 文档与文档页面
package api

import (
	"embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

//go:embed docs/index.html
var DocsFS embed.FS

// SpecFile 内嵌 OpenAPI 文档路径
const SpecFile = "openapi/rental-admin.yaml"

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// LoadSpec 解析并校验内嵌的 OpenAPI 文档（进程内只解析一次）
func LoadSpec() (*openapi3.T, error) {
	specOnce.Do(func() {
		data, err := OpenAPIFS.ReadFile(SpecFile)
		if err != nil {
			specErr = fmt.Errorf("read %s: %w", SpecFile, err)
			return
		}
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(data)
		if err != nil {
			specErr = fmt.Errorf("load openapi: %w", err)
			return
		}
		if err := doc.Validate(loader.Context); err != nil {
			specErr = fmt.Errorf("validate openapi: %w", err)
			return
		}
		specDoc = doc
	})
	return specDoc, specErr
}
