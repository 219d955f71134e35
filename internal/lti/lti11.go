package lti

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const poxNamespace = "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0"

type poxEnvelope struct {
	XMLName xml.Name `xml:"imsx_POXEnvelopeRequest"`
	Xmlns   string   `xml:"xmlns,attr"`
	Header  struct {
		Info struct {
			Version           string `xml:"imsx_version"`
			MessageIdentifier string `xml:"imsx_messageIdentifier"`
		} `xml:"imsx_POXRequestHeaderInfo"`
	} `xml:"imsx_POXHeader"`
	Body struct {
		Replace struct {
			Record struct {
				SourcedID string `xml:"sourcedGUID>sourcedId"`
				Language  string `xml:"result>resultTotalScore>language"`
				Score     string `xml:"result>resultTotalScore>textString"`
			} `xml:"resultRecord"`
		} `xml:"replaceResultRequest"`
	} `xml:"imsx_POXBody"`
}

// LTI11Publisher implements the Basic Outcomes replaceResult call signed with OAuth 1.0 body hashing.
type LTI11Publisher struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
	nonce  func() string
}

// NewLTI11Publisher constructs the publisher. A nil client gets one with the given timeout.
func NewLTI11Publisher(client *http.Client, timeout time.Duration, logger *zap.Logger) *LTI11Publisher {
	return &LTI11Publisher{
		client: defaultClient(client, timeout),
		logger: nopLogger(logger),
		now:    time.Now,
		nonce:  newNonce,
	}
}

// Publish sends replaceResult for the outcome's sourced id.
func (p *LTI11Publisher) Publish(ctx context.Context, outcome Outcome) error {
	body, err := p.replaceResultBody(outcome)
	if err != nil {
		return err
	}
	authorization, err := p.authorization(outcome, body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, outcome.OutcomeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build replaceResult request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", authorization)

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("replaceResult: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if err := checkStatus("replaceResult", res); err != nil {
		return err
	}
	p.logger.Debug("replaceResult delivered", zap.String("consumer_id", outcome.Consumer.ID), zap.String("sourced_id", outcome.ReturnID))
	return nil
}

func (p *LTI11Publisher) replaceResultBody(outcome Outcome) ([]byte, error) {
	var envelope poxEnvelope
	envelope.Xmlns = poxNamespace
	envelope.Header.Info.Version = "V1.0"
	envelope.Header.Info.MessageIdentifier = uuid.NewString()
	envelope.Body.Replace.Record.SourcedID = outcome.ReturnID
	envelope.Body.Replace.Record.Language = "en"
	envelope.Body.Replace.Record.Score = strconv.FormatFloat(outcome.Score, 'f', -1, 64)

	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode replaceResult: %w", err)
	}
	return append([]byte(xml.Header), payload...), nil
}

func (p *LTI11Publisher) authorization(outcome Outcome, body []byte) (string, error) {
	signer := consumerSigner(outcome.Consumer.Secret)
	hash := sha1.Sum(body) //nolint:gosec
	params := map[string]string{
		"oauth_body_hash":        base64.StdEncoding.EncodeToString(hash[:]),
		"oauth_callback":         "about:blank",
		"oauth_consumer_key":     outcome.Consumer.Key,
		"oauth_nonce":            p.nonce(),
		"oauth_signature_method": signer.Name(),
		"oauth_timestamp":        strconv.FormatInt(p.now().Unix(), 10),
		"oauth_version":          "1.0",
	}
	signature, err := signRequest(signer, http.MethodPost, outcome.OutcomeURL, params)
	if err != nil {
		return "", err
	}
	params["oauth_signature"] = signature

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, `OAuth realm=""`)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, oauth1.PercentEncode(params[k])))
	}
	return strings.Join(parts, ","), nil
}

// consumerSigner signs two-legged requests: the key is the encoded consumer secret and the token secret is empty.
func consumerSigner(secret string) oauth1.Signer {
	return &oauth1.HMACSigner{ConsumerSecret: oauth1.PercentEncode(secret)}
}

// Sign computes the OAuth 1.0 HMAC-SHA1 signature of a request. Query parameters of rawURL join the
// signed parameter set; the token secret is empty.
func Sign(method, rawURL string, params map[string]string, consumerSecret string) (string, error) {
	return signRequest(consumerSigner(consumerSecret), method, rawURL, params)
}

func signRequest(signer oauth1.Signer, method, rawURL string, params map[string]string) (string, error) {
	base, err := signatureBase(method, rawURL, params)
	if err != nil {
		return "", err
	}
	signature, err := signer.Sign("", base)
	if err != nil {
		return "", fmt.Errorf("sign outcome request: %w", err)
	}
	return signature, nil
}

func signatureBase(method, rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse outcome url: %w", err)
	}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if k == "oauth_signature" {
			continue
		}
		pairs = append(pairs, oauth1.PercentEncode(k)+"="+oauth1.PercentEncode(v))
	}
	for k, values := range u.Query() {
		for _, v := range values {
			pairs = append(pairs, oauth1.PercentEncode(k)+"="+oauth1.PercentEncode(v))
		}
	}
	sort.Strings(pairs)

	return strings.Join([]string{
		strings.ToUpper(method),
		oauth1.PercentEncode(baseURL(u)),
		oauth1.PercentEncode(strings.Join(pairs, "&")),
	}, "&"), nil
}

func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
