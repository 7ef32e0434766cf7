package simulator

// prelude installs the Functions helper object on top of the host bindings.
// Helpers return Uint8Array values the way the DON runtime does.
const prelude = `
var Functions = Object.freeze({
  makeHttpRequest: function (config) {
    config = config || {};
    var data = config.data;
    if (data !== undefined && data !== null && typeof data !== "string") {
      data = JSON.stringify(data);
    }
    var res = __httpRequest({
      url: String(config.url || ""),
      method: String(config.method || "get"),
      headers: config.headers || {},
      params: config.params || {},
      data: data === undefined || data === null ? "" : data,
      timeout: config.timeout || 3000
    });
    if (res.failed) {
      return { error: true, message: res.message, code: res.code };
    }
    var body = res.body;
    if ((config.responseType || "json") === "json" && res.json) {
      body = JSON.parse(body);
    }
    var response = {
      error: false,
      data: body,
      status: res.status,
      statusText: res.statusText,
      headers: res.headers
    };
    if (res.status < 200 || res.status >= 300) {
      return {
        error: true,
        message: "Request failed with status code " + res.status,
        code: "ERR_BAD_RESPONSE",
        response: response
      };
    }
    return response;
  },
  encodeString: function (s) {
    return new Uint8Array(__encodeString(String(s)));
  },
  encodeUint256: function (n) {
    return new Uint8Array(__encodeUint256(n));
  },
  encodeInt256: function (n) {
    return new Uint8Array(__encodeInt256(n));
  }
});

function __resultHex(v) {
  if (v === undefined || v === null) {
    throw new Error("returned value is empty");
  }
  if (v instanceof ArrayBuffer) {
    v = new Uint8Array(v);
  }
  if (!(v instanceof Uint8Array) && !Array.isArray(v)) {
    throw new Error("returned value not an ArrayBuffer or Uint8Array");
  }
  var out = "";
  for (var i = 0; i < v.length; i++) {
    var b = v[i] & 0xff;
    out += (b < 16 ? "0" : "") + b.toString(16);
  }
  return out;
}
`
