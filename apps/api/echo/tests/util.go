package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/services/idempotency"
	"github.com/trezcool/masomo-fees/storage/database/dummy"
	"github.com/trezcool/masomo-fees/tests"
)

type testApp struct {
	*echoapi.Server
	conf       *core.Config
	db         *dummydb.DB
	feeRepo    fee.Repository
	prtRepo    parent.Repository
	store      idempotency.Store
	mailSvc    *emailsvc.ConsoleServiceMock
	adminToken string
	userToken  string
}

// setup serves the API over an in-memory database.
// wrapFeeSvc may decorate the fee service, to simulate failures.
func setup(t *testing.T, wrapFeeSvc ...func(fee.ServiceInterface) fee.ServiceInterface) *testApp {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	db := dummydb.Open()
	app := &testApp{
		conf:    conf,
		db:      db,
		feeRepo: dummydb.NewFeeRepository(db),
		prtRepo: dummydb.NewParentRepository(db),
		store:   idempotency.NewMemoryStore(),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}

	prtSvc := parent.NewService(app.prtRepo, validate)
	var feeSvc fee.ServiceInterface = fee.NewService(db, app.feeRepo, prtSvc, app.mailSvc, logger, validate, conf)
	for _, wrap := range wrapFeeSvc {
		feeSvc = wrap(feeSvc)
	}

	app.Server = echoapi.NewServer(echoapi.Deps{
		Conf:        conf,
		Logger:      logger,
		FeeSvc:      feeSvc,
		ParentSvc:   prtSvc,
		Idempotency: app.store,
		Validate:    validate,
		Translator:  translator,
	})
	app.adminToken = getToken(t, conf, "admin-1", true)
	app.userToken = getToken(t, conf, "ops-1", false)
	return app
}

func (app *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func getToken(t *testing.T, conf *core.Config, subject string, isAdmin bool) string {
	claims := echoapi.NewClaims(conf, subject, subject, subject+"@test.cd", isAdmin)
	token, err := echoapi.GenerateToken(conf.SecretKey, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshallBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshallBody(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
