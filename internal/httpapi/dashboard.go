package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>SpecSync Progress Board</title>
  <style>
    :root {
      --ink: #16212b;
      --paper: #f7f5ef;
      --card: #fffdf8;
      --line: #d9d0bd;
      --green: #1f9d5f;
      --amber: #e0a52e;
      --red: #c2483f;
      --muted: #6e7a84;
      --shadow: 0 16px 32px rgba(22, 33, 43, 0.14);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1000px 460px at -5% -10%, rgba(224, 165, 46, 0.16), transparent 60%),
        radial-gradient(900px 460px at 110% -10%, rgba(31, 157, 95, 0.16), transparent 65%),
        linear-gradient(140deg, #fdf9ef 0%, #f0f6f2 50%, #fffdf8 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell {
      max-width: 1080px;
      margin: 0 auto;
      display: grid;
      gap: 14px;
      animation: rise 420ms ease-out;
    }

    .bar {
      background: linear-gradient(140deg, #fffefc, #fbf5e9);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    h1 {
      margin: 0;
      font-size: clamp(1.2rem, 2vw, 1.7rem);
      letter-spacing: 0.02em;
    }

    .sub {
      margin-top: 6px;
      color: var(--muted);
      font-size: 0.9rem;
    }

    .controls {
      display: grid;
      gap: 10px;
      grid-template-columns: 1.4fr 0.8fr 0.6fr;
      margin-top: 12px;
    }

    .controls input, .controls select {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      background: #ffffff;
      color: var(--ink);
      padding: 10px 12px;
      font-size: 0.92rem;
      outline: none;
    }

    button {
      border: 0;
      border-radius: 10px;
      padding: 10px 12px;
      font-family: inherit;
      font-weight: 700;
      cursor: pointer;
      background: linear-gradient(125deg, var(--green), #2ab377);
      color: #ffffff;
      transition: transform 120ms ease;
    }

    button:hover { transform: translateY(-1px); }

    .cards {
      display: grid;
      gap: 12px;
      grid-template-columns: repeat(auto-fill, minmax(280px, 1fr));
    }

    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 14px;
      box-shadow: 0 8px 18px rgba(22, 33, 43, 0.08);
      animation: stagger 340ms ease both;
    }

    .card h2 {
      margin: 0 0 4px;
      font-size: 1rem;
      text-transform: capitalize;
      letter-spacing: 0.04em;
    }

    .card .meta {
      color: var(--muted);
      font-size: 0.78rem;
      margin-bottom: 10px;
    }

    .track {
      display: flex;
      height: 14px;
      border-radius: 8px;
      overflow: hidden;
      border: 1px solid var(--line);
      background: #efe9da;
    }

    .seg-green { background: var(--green); }
    .seg-amber { background: var(--amber); }
    .seg-red { background: var(--red); }

    .legend {
      display: flex;
      gap: 12px;
      margin-top: 8px;
      font-size: 0.78rem;
      color: var(--muted);
    }

    .legend b { color: var(--ink); }

    .status-line {
      margin-top: 10px;
      font-size: 0.84rem;
      color: var(--muted);
      display: flex;
      flex-wrap: wrap;
      gap: 10px;
    }

    .mono { font-family: "IBM Plex Mono", Menlo, Consolas, monospace; }
    .ok { color: #0f8f53; }
    .err { color: var(--red); }

    @keyframes rise {
      from { opacity: 0; transform: translateY(8px); }
      to { opacity: 1; transform: translateY(0); }
    }

    @keyframes stagger {
      from { opacity: 0; transform: translateY(6px); }
      to { opacity: 1; transform: translateY(0); }
    }

    @media (max-width: 640px) {
      body { padding: 12px; }
      .controls { grid-template-columns: 1fr; }
    }
  </style>
</head>
<body>
  <main class="shell">
    <section class="bar">
      <h1>SpecSync Progress Board</h1>
      <div class="sub">Per-subject curriculum progress with live updates over the event stream.</div>
      <div class="controls">
        <input id="token" type="password" placeholder="Bearer token (leave empty if auth is off)" autocomplete="off" />
        <select id="mode">
          <option value="">subject default</option>
          <option value="checkbox">checkbox</option>
          <option value="rag">rag</option>
        </select>
        <button id="refresh" type="button">Refresh</button>
      </div>
      <div class="status-line">
        <span>API: <span class="mono" id="apiBase"></span></span>
        <span>Last: <span id="lastUpdated">never</span></span>
        <span id="statusMessage">idle</span>
        <span id="streamState">stream: off</span>
      </div>
    </section>

    <section id="cards" class="cards"></section>
  </main>

  <script>
    (function () {
      const dom = {
        token: document.getElementById("token"),
        mode: document.getElementById("mode"),
        refresh: document.getElementById("refresh"),
        apiBase: document.getElementById("apiBase"),
        lastUpdated: document.getElementById("lastUpdated"),
        statusMessage: document.getElementById("statusMessage"),
        streamState: document.getElementById("streamState"),
        cards: document.getElementById("cards"),
      };

      let socket = null;

      function getToken() {
        return dom.token.value.trim();
      }

      function setStatus(text, cls) {
        dom.statusMessage.textContent = text;
        dom.statusMessage.className = cls || "";
      }

      async function request(path) {
        const headers = {};
        const token = getToken();
        if (token) {
          headers["Authorization"] = "Bearer " + token;
        }
        const response = await fetch(window.location.origin + path, { headers: headers });
        const data = await response.json();
        if (!response.ok) {
          throw new Error(response.status + " " + String(data.code || "error") + ": " + String(data.message || ""));
        }
        return data;
      }

      function segment(cls, count, total) {
        const span = document.createElement("span");
        span.className = cls;
        span.style.width = total > 0 ? ((count / total) * 100) + "%" : "0";
        return span;
      }

      function renderCard(summary) {
        const card = document.createElement("article");
        card.className = "card";

        const title = document.createElement("h2");
        title.textContent = summary.subject;
        card.appendChild(title);

        const meta = document.createElement("div");
        meta.className = "meta";
        meta.textContent = summary.hasData
          ? summary.mode + " | " + summary.percent + "% complete"
          : summary.mode + " | no data yet";
        card.appendChild(meta);

        const track = document.createElement("div");
        track.className = "track";
        const counts = summary.counts || {};
        const total = counts.total || 0;
        if (summary.hasData && total > 0) {
          track.appendChild(segment("seg-green", counts.green || 0, total));
          track.appendChild(segment("seg-amber", counts.amber || 0, total));
          track.appendChild(segment("seg-red", counts.red || 0, total));
        }
        card.appendChild(track);

        const legend = document.createElement("div");
        legend.className = "legend";
        legend.innerHTML =
          "<span>green <b>" + String(counts.green || 0) + "</b></span>" +
          "<span>amber <b>" + String(counts.amber || 0) + "</b></span>" +
          "<span>red <b>" + String(counts.red || 0) + "</b></span>" +
          "<span>total <b>" + String(total) + "</b></span>";
        card.appendChild(legend);

        return card;
      }

      async function refresh() {
        setStatus("refreshing...", "");
        try {
          const mode = dom.mode.value;
          const query = mode ? "?mode=" + encodeURIComponent(mode) : "";
          const result = await request("/v1/subjects" + query);
          dom.cards.innerHTML = "";
          (result.subjects || []).forEach((summary) => {
            dom.cards.appendChild(renderCard(summary));
          });
          dom.lastUpdated.textContent = new Date().toLocaleTimeString();
          setStatus("ok", "ok");
          window.localStorage.setItem("specsync_dashboard_token", getToken());
        } catch (err) {
          setStatus(String(err && err.message ? err.message : err), "err");
        }
      }

      function connectStream() {
        if (socket) {
          socket.close();
          socket = null;
        }
        const scheme = window.location.protocol === "https:" ? "wss://" : "ws://";
        const token = getToken();
        const query = token ? "?token=" + encodeURIComponent(token) : "";
        try {
          socket = new WebSocket(scheme + window.location.host + "/v1/events" + query);
        } catch (err) {
          dom.streamState.textContent = "stream: unavailable";
          return;
        }
        socket.onopen = function () {
          dom.streamState.textContent = "stream: live";
        };
        socket.onmessage = function () {
          refresh();
        };
        socket.onclose = function () {
          dom.streamState.textContent = "stream: off";
        };
      }

      dom.refresh.addEventListener("click", refresh);
      dom.mode.addEventListener("change", refresh);
      dom.token.addEventListener("change", function () {
        refresh();
        connectStream();
      });

      dom.token.value = window.localStorage.getItem("specsync_dashboard_token") || "";
      dom.apiBase.textContent = window.location.origin;

      refresh();
      connectStream();
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
