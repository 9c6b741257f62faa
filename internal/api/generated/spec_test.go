package generated

import "testing"

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	if err != nil {
		t.Fatalf("Ошибка загрузки документа: %v", err)
	}

	for _, path := range []string{
		"/api/upload",
		"/api/files",
		"/api/files/{fileId}",
		"/api/metadata/{fileId}",
		"/api/finalize/{fileId}",
		"/api/download/{fileId}",
		"/api/hash/{fileId}",
		"/api/security/{fileId}",
		"/api/info",
		"/api/maintenance/cleanup",
		"/health/live",
		"/health/ready",
		"/metrics",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("Путь %s отсутствует в документе", path)
		}
	}
}
