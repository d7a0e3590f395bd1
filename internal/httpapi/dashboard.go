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
  <title>Notification Console</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --accent-2: #e88a3d;
      --danger: #c2483f;
      --muted: #6f7d7d;
      --shadow: 0 18px 36px rgba(16, 34, 35, 0.16);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1200px 500px at -5% -10%, rgba(232, 138, 61, 0.18), transparent 60%),
        radial-gradient(900px 500px at 110% -10%, rgba(31, 157, 136, 0.2), transparent 65%),
        linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell { max-width: 1100px; margin: 0 auto; display: grid; gap: 14px; }

    .bar, .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    .bar { display: flex; flex-wrap: wrap; gap: 10px; align-items: center; }
    h1 { margin: 0 auto 0 0; font-size: clamp(1.2rem, 2vw, 1.75rem); letter-spacing: 0.02em; }
    input, select, button {
      font: inherit;
      border: 1px solid var(--line);
      border-radius: 10px;
      padding: 6px 10px;
      background: var(--paper);
    }
    button { cursor: pointer; }
    button.danger { color: var(--danger); }
    .status { color: var(--muted); font-size: 0.9rem; }
    .status.ok { color: var(--accent); }
    .status.warn { color: var(--accent-2); }

    .row {
      display: grid;
      grid-template-columns: 10px 1fr auto;
      gap: 12px;
      padding: 10px 0;
      border-bottom: 1px dashed var(--line);
      cursor: pointer;
    }
    .row.unread .msg { font-weight: 600; }
    .row.highlight { background: rgba(31, 157, 136, 0.12); transition: background 600ms; }
    .dot { width: 10px; height: 10px; border-radius: 50%; margin-top: 6px; background: var(--muted); }
    .dot.error { background: var(--danger); }
    .dot.warning { background: var(--accent-2); }
    .dot.info { background: var(--accent); }
    .meta { color: var(--muted); font-size: 0.85rem; }
    pre { white-space: pre-wrap; word-break: break-all; background: var(--paper); padding: 10px; border-radius: 10px; }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Notifications</h1>
      <input id="search" placeholder="search id, email, message, type" />
      <select id="type"></select>
      <label><input type="checkbox" id="unread" /> unread only</label>
      <button id="clear" class="danger">Clear all</button>
      <span id="status" class="status">connecting</span>
    </div>
    <div class="card">
      <div class="meta" id="counts"></div>
      <div id="list"></div>
    </div>
    <div class="card" id="detail" hidden></div>
  </div>
  <script>
    (() => {
      const dom = {
        search: document.getElementById("search"),
        type: document.getElementById("type"),
        unread: document.getElementById("unread"),
        clear: document.getElementById("clear"),
        status: document.getElementById("status"),
        counts: document.getElementById("counts"),
        list: document.getElementById("list"),
        detail: document.getElementById("detail"),
      };

      function setStatus(text, tone) {
        dom.status.textContent = text;
        dom.status.className = "status " + (tone || "");
      }

      function text(tag, value, cls) {
        const el = document.createElement(tag);
        el.textContent = value;
        if (cls) el.className = cls;
        return el;
      }

      async function api(path, init) {
        const res = await fetch(path, init);
        if (!res.ok && res.status !== 204) throw new Error(res.status + " " + res.statusText);
        return res.status === 204 ? null : res.json();
      }

      function renderTypes(types) {
        const current = dom.type.value || "ALL";
        dom.type.replaceChildren(...types.map((t) => {
          const opt = text("option", t);
          opt.value = t;
          return opt;
        }));
        dom.type.value = types.includes(current) ? current : "ALL";
      }

      function renderDetail(item) {
        dom.detail.hidden = false;
        dom.detail.replaceChildren(
          text("h2", item.type),
          text("div", item.id + " · " + (item.recipient || "no recipient") + " · " + item.timestamp, "meta"),
          text("p", item.message),
          text("pre", JSON.stringify(item.raw === undefined ? {} : item.raw, null, 2)),
        );
      }

      async function refresh() {
        const params = new URLSearchParams({
          q: dom.search.value,
          unread: dom.unread.checked ? "true" : "false",
          type: dom.type.value || "ALL",
        });
        try {
          const view = await api("/v1/notifications?" + params.toString());
          renderTypes(view.types);
          dom.counts.textContent = view.total + " stored · " + view.unread + " unread · " + view.items.length + " shown";
          dom.list.replaceChildren(...view.items.map((item) => {
            const row = document.createElement("div");
            row.className = "row" + (item.read ? "" : " unread") + (item.highlighted ? " highlight" : "");
            const body = document.createElement("div");
            body.append(text("div", item.summary, "msg"), text("div", item.type + " · " + (item.recipient || "") + " · " + item.timestamp, "meta"));
            const remove = text("button", "×");
            remove.addEventListener("click", async (ev) => {
              ev.stopPropagation();
              await api("/v1/notifications/" + encodeURIComponent(item.id), { method: "DELETE" });
              refresh();
            });
            row.append(text("span", "", "dot " + item.severity), body, remove);
            row.addEventListener("click", async () => {
              renderDetail(await api("/v1/notifications/" + encodeURIComponent(item.id)));
              refresh();
            });
            return row;
          }));
        } catch (err) {
          setStatus("load failed: " + err.message, "warn");
        }
      }

      function connect() {
        const scheme = location.protocol === "https:" ? "wss://" : "ws://";
        const ws = new WebSocket(scheme + location.host + "/v1/notifications/live");
        ws.onopen = () => setStatus("live", "ok");
        ws.onmessage = () => refresh();
        ws.onclose = () => {
          setStatus("reconnecting", "warn");
          setTimeout(connect, 5000);
        };
      }

      dom.search.addEventListener("input", refresh);
      dom.type.addEventListener("change", refresh);
      dom.unread.addEventListener("change", refresh);
      dom.clear.addEventListener("click", async () => {
        await api("/v1/notifications", { method: "DELETE" });
        dom.detail.hidden = true;
        refresh();
      });

      refresh();
      connect();
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
