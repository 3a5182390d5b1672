// Marketing Cloud destination writer: REST asset API plus the SOAP API for data folders, data extensions and classic emails
package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/hsmc/internal/converter"
	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/shared"
)

// Asset type ids of the Content Builder API.
const (
	assetTypeTemplate  = 4
	assetTypeHTMLBlock = 197
	assetTypeWebPage   = 205
	assetTypeHTMLEmail = 208
)

// SFMCService writes destination assets for one resolved credential.
type SFMCService struct {
	rest   *APIService
	soap   *APIService
	token  string
	logger *log.Logger
	now    func() time.Time
}

// NewSFMCService creates a writer. limiter may be nil; the REST and SOAP clients share it.
func NewSFMCService(cred *models.Credential, client *http.Client, limiter *rate.Limiter, logger *log.Logger) *SFMCService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	authed := BearerClient(client, cred.AccessToken)

	soapBase := strings.TrimRight(cred.SoapBaseURL, "/")
	if !strings.HasSuffix(soapBase, "/Service.asmx") {
		soapBase += "/Service.asmx"
	}

	return &SFMCService{
		rest:   NewAPIService(string(models.PlatformSFMC), cred.RestBaseURL, authed).WithLimiter(limiter),
		soap:   NewAPIService(string(models.PlatformSFMC)+"-soap", soapBase, authed).WithLimiter(limiter),
		token:  cred.AccessToken,
		logger: shared.WithLogger(logger, "service", "sfmc"),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for keys and synthetic ids.
func (s *SFMCService) SetClock(now func() time.Time) {
	s.now = now
}

// idExtractor pulls a numeric id out of a create response.
type idExtractor struct {
	name  string
	run   func(body map[string]any, key string) (int64, bool)
	lossy bool // the number is derived, not the entity's id
}

func fieldID(path ...string) func(map[string]any, string) (int64, bool) {
	return func(body map[string]any, _ string) (int64, bool) {
		var cur any = body
		for _, p := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				return 0, false
			}
			cur = m[p]
		}
		return parseID(cur)
	}
}

// idExtractors are tried in order. The last resort reads the timestamp suffix of a customer key,
// which is a creation time rather than an id.
var idExtractors = []idExtractor{
	{name: "id", run: fieldID("id")},
	{name: "assetId", run: fieldID("assetId")},
	{name: "objectID", run: fieldID("objectID")},
	{name: "legacyData.legacyId", run: fieldID("legacyData", "legacyId")},
	{name: "customerKey", lossy: true, run: func(body map[string]any, key string) (int64, bool) {
		for _, k := range []any{body["customerKey"], body["key"], key} {
			if s, ok := k.(string); ok {
				if id, ok := shared.ParseCustomerKeyID(s); ok {
					return id, true
				}
			}
		}
		return 0, false
	}},
}

func parseID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int64(t), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// ExtractID reads the id of a created entity from its response body.
//
// Ids recovered from a customer key suffix, and the time-based id used when nothing usable
// is found, come back with synthetic set. Such ids do not refer to a real entity.
func ExtractID(body map[string]any, key string, now time.Time) (id int64, via string, synthetic bool) {
	for _, ex := range idExtractors {
		if id, ok := ex.run(body, key); ok {
			return id, ex.name, ex.lossy
		}
	}
	return now.UnixMilli(), "synthetic", true
}

// asset builds a DestinationAsset from a create response, warning when its id is synthetic.
func (s *SFMCService) asset(kind models.DestinationKind, name, key string, body map[string]any) *models.DestinationAsset {
	id, via, synthetic := ExtractID(body, key, s.now())
	if synthetic {
		s.logger.Warn("no id in create response; using synthetic id", "kind", kind, "name", name, "id", id, "via", via)
	}
	if k, ok := body["customerKey"].(string); ok && k != "" {
		key = k
	}
	a := &models.DestinationAsset{Kind: kind, ID: id, Key: key, Name: name, Synthetic: synthetic}
	if via != "id" && !synthetic {
		s.logger.Debug("id read from fallback field", "kind", kind, "field", via)
	}
	return a
}

// SOAP transport

const soapEnvelope = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:u="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">` +
	`<s:Header><a:Action s:mustUnderstand="1">%s</a:Action><a:To s:mustUnderstand="1">%s</a:To>` +
	`<fueloauth xmlns="http://exacttarget.com">%s</fueloauth></s:Header>` +
	`<s:Body xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">%s</s:Body></s:Envelope>`

type soapResult struct {
	StatusCode    string `xml:"StatusCode"`
	StatusMessage string `xml:"StatusMessage"`
	ErrorCode     string `xml:"ErrorCode"`
	NewID         string `xml:"NewID"`
	NewObjectID   string `xml:"NewObjectID"`
}

type soapFolder struct {
	ID           string `xml:"ID"`
	Name         string `xml:"Name"`
	CustomerKey  string `xml:"CustomerKey"`
	ContentType  string `xml:"ContentType"`
	ParentFolder struct {
		ID string `xml:"ID"`
	} `xml:"ParentFolder"`
}

type soapResponse struct {
	Body struct {
		Fault *struct {
			Reason string `xml:"Reason>Text"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Create struct {
			OverallStatus string       `xml:"OverallStatus"`
			Results       []soapResult `xml:"Results"`
		} `xml:"CreateResponse"`
		Retrieve struct {
			OverallStatus string       `xml:"OverallStatus"`
			Results       []soapFolder `xml:"Results"`
		} `xml:"RetrieveResponseMsg"`
	} `xml:"Body"`
}

// soapCall posts one SOAP action and decodes the envelope. Faults and non-OK overall statuses are errors.
func (s *SFMCService) soapCall(ctx context.Context, action, body string) (*soapResponse, error) {
	envelope := fmt.Sprintf(soapEnvelope, action, converter.EscapeXML(s.soap.BaseURL()), converter.EscapeXML(s.token), body)
	resp, err := s.soap.Do(ctx, http.MethodPost, "", []byte(envelope), map[string]string{
		"Content-Type": "text/xml; charset=utf-8",
		"SOAPAction":   action,
	})
	if err != nil {
		return nil, err
	}

	var out soapResponse
	decodeErr := xml.NewDecoder(bytes.NewReader(resp.Body)).Decode(&out)
	if !resp.OK() || decodeErr != nil || out.Body.Fault != nil {
		return nil, &shared.APIError{
			Service:    "sfmc-soap",
			Method:     action,
			Path:       "/Service.asmx",
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	status := out.Body.Create.OverallStatus + out.Body.Retrieve.OverallStatus
	if status != "" && !strings.HasPrefix(status, "OK") && status != "MoreDataAvailable" {
		msg := status
		if len(out.Body.Create.Results) > 0 {
			msg = out.Body.Create.Results[0].StatusMessage
		}
		return nil, &shared.APIError{
			Service:    "sfmc-soap",
			Method:     action,
			Path:       "/Service.asmx",
			StatusCode: resp.StatusCode,
			Body:       msg,
		}
	}
	return &out, nil
}

// soapCreate runs a Create for a single object of type typ and returns its result row.
func (s *SFMCService) soapCreate(ctx context.Context, typ, inner string) (soapResult, error) {
	body := `<CreateRequest xmlns="http://exacttarget.com/wsdl/partnerAPI"><Objects xsi:type="` + typ + `">` +
		inner + `</Objects></CreateRequest>`
	out, err := s.soapCall(ctx, "Create", body)
	if err != nil {
		return soapResult{}, err
	}
	if len(out.Body.Create.Results) == 0 {
		return soapResult{}, fmt.Errorf("%w: empty create response", shared.ErrWrite)
	}
	return out.Body.Create.Results[0], nil
}

func xmlElem(name, value string) string {
	return "<" + name + ">" + converter.EscapeXML(value) + "</" + name + ">"
}
