// soap.go — типизированные SOAP 1.1 сообщения протокола EDMS (DM Server).
// Запросы и ответы описаны структурами; ответ с чужим корневым
// элементом отклоняется на границе как ErrUnexpectedResponse.
package edms

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Пространства имён сообщений DM Server.
const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS  = "http://tempuri.org/"
	dataNS     = "http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable"
	arraysNS   = "http://schemas.microsoft.com/2003/10/Serialization/Arrays"
)

// SOAPAction для операций IDMSvc и IDMObj.
const (
	actionLogin         = serviceNS + "IDMSvc/LoginSvr5"
	actionGetDocument   = serviceNS + "IDMSvc/GetDocSvr3"
	actionGetReadStream = serviceNS + "IDMObj/GetReadStream"
	actionReadStream    = serviceNS + "IDMObj/ReadStream"
	actionRelease       = serviceNS + "IDMObj/ReleaseObject"
)

// ResultSuccess — код успешного результата DM Server.
const ResultSuccess = 0

// --- Конверт ---

type requestEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    requestBody
}

type requestBody struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Content any
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// encodeEnvelope сериализует запрос в SOAP-конверт.
func encodeEnvelope(content any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(requestEnvelope{Body: requestBody{Content: content}}); err != nil {
		return nil, fmt.Errorf("сериализация SOAP-запроса: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEnvelope находит первый элемент внутри soap:Body и декодирует его в out.
// Fault возвращается как ErrFault.
func decodeEnvelope(r io.Reader, out any) error {
	dec := xml.NewDecoder(r)
	inBody := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: тело SOAP-конверта не найдено: %v", ErrUnexpectedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case !inBody:
			inBody = start.Name.Space == envelopeNS && start.Name.Local == "Body"
		case start.Name.Space == envelopeNS && start.Name.Local == "Fault":
			var f soapFault
			if err := dec.DecodeElement(&f, &start); err != nil {
				return fmt.Errorf("%w: некорректный Fault: %v", ErrUnexpectedResponse, err)
			}
			return fmt.Errorf("%w: %s: %s", ErrFault, f.Code, f.String)
		default:
			if err := dec.DecodeElement(out, &start); err != nil {
				return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
			}
			return nil
		}
	}
}

// --- LoginSvr5 ---

type loginRequest struct {
	XMLName xml.Name  `xml:"http://tempuri.org/ LoginSvr5"`
	Call    loginCall `xml:"http://tempuri.org/ call"`
}

type loginCall struct {
	LoginInfo loginInfoArray `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable loginInfo"`
	Authen    int            `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable authen"`
	DSTIn     string         `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable dstIn"`
}

type loginInfoArray struct {
	Items []loginInfo `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable DMSvrLoginInfo"`
}

type loginInfo struct {
	Network      int    `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable network"`
	LoginContext string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable loginContext"`
	Username     string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable username"`
	Password     string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable password"` //nolint:gosec // G117: поле SOAP-сообщения
}

type loginResponse struct {
	XMLName xml.Name `xml:"http://tempuri.org/ LoginSvr5Response"`
	Result  struct {
		ResultCode int    `xml:"resultCode"`
		DSTOut     string `xml:"DSTOut"`
	} `xml:"LoginSvr5Result"`
}

// --- GetDocSvr3 ---

type getDocRequest struct {
	XMLName xml.Name   `xml:"http://tempuri.org/ GetDocSvr3"`
	Call    getDocCall `xml:"http://tempuri.org/ call"`
}

type getDocCall struct {
	DSTIn    string      `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable dstIn"`
	Criteria docCriteria `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable criteria"`
}

type docCriteria struct {
	Count  int         `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable criteriaCount"`
	Names  stringArray `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable criteriaNames"`
	Values stringArray `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable criteriaValues"`
}

type stringArray struct {
	Items []string `xml:"http://schemas.microsoft.com/2003/10/Serialization/Arrays string"`
}

type getDocResponse struct {
	XMLName xml.Name `xml:"http://tempuri.org/ GetDocSvr3Response"`
	Result  struct {
		ResultCode int    `xml:"resultCode"`
		GetDocID   string `xml:"getDocID"`
	} `xml:"GetDocSvr3Result"`
}

// --- GetReadStream ---

type getReadStreamRequest struct {
	XMLName xml.Name          `xml:"http://tempuri.org/ GetReadStream"`
	Call    getReadStreamCall `xml:"http://tempuri.org/ call"`
}

type getReadStreamCall struct {
	DSTIn     string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable dstIn"`
	ContentID string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable contentID"`
}

type getReadStreamResponse struct {
	XMLName xml.Name `xml:"http://tempuri.org/ GetReadStreamResponse"`
	Result  struct {
		ResultCode int    `xml:"resultCode"`
		StreamID   string `xml:"streamID"`
	} `xml:"GetReadStreamResult"`
}

// --- ReadStream ---

type readStreamRequest struct {
	XMLName xml.Name       `xml:"http://tempuri.org/ ReadStream"`
	Call    readStreamCall `xml:"http://tempuri.org/ call"`
}

type readStreamCall struct {
	StreamID       string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable streamID"`
	RequestedBytes int    `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable requestedBytes"`
}

type readStreamResponse struct {
	XMLName xml.Name `xml:"http://tempuri.org/ ReadStreamResponse"`
	Result  struct {
		ResultCode int `xml:"resultCode"`
		StreamData *struct {
			StreamBuffer string `xml:"streamBuffer"`
		} `xml:"streamData"`
	} `xml:"ReadStreamResult"`
}

// chunk декодирует base64-буфер фрагмента. Отсутствие streamData — пустой фрагмент.
func (r *readStreamResponse) chunk() ([]byte, error) {
	if r.Result.StreamData == nil {
		return nil, nil
	}
	raw := strings.Join(strings.Fields(r.Result.StreamData.StreamBuffer), "")
	if raw == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный streamBuffer: %v", ErrUnexpectedResponse, err)
	}
	return data, nil
}

// --- ReleaseObject ---

type releaseRequest struct {
	XMLName xml.Name    `xml:"http://tempuri.org/ ReleaseObject"`
	Call    releaseCall `xml:"http://tempuri.org/ call"`
}

type releaseCall struct {
	ObjectID string `xml:"http://schemas.datacontract.org/2004/07/OpenText.DMSvr.Serializable objectID"`
}

type releaseResponse struct {
	XMLName xml.Name `xml:"http://tempuri.org/ ReleaseObjectResponse"`
	Result  struct {
		ResultCode int `xml:"resultCode"`
	} `xml:"ReleaseObjectResult"`
}
