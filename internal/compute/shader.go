package compute

// collisionShader tests every occupied cell of one fragment against the
// terrain occupancy. The record layouts match collision/layout.go.
//
// Bindings:
//
//	0 chunk hash table, vec4<i32>(x, y, z, layer) per slot
//	1 chunk occupancy layers
//	2 fragment records
//	3 packed fragment occupancy
//	4 per-dispatch parameters
//	5 contact output: atomic count, then records
const collisionShader = `
const EMPTY: i32 = 2147483647;
const PROBE_DEPTH: u32 = 4u;
const SURFACE_SEARCH: i32 = 4;
const FLAG_SOLID: u32 = 1u;
const KIND_TERRAIN: u32 = 0u;

struct Fragment {
    position: vec3<f32>,
    rotation: vec4<f32>,
    size: vec3<u32>,
    entity_lo: u32,
    entity_hi: u32,
    occ_offset: u32,
    occ_words: u32,
    flags: u32,
}

struct Params {
    fragment_index: u32,
    fragment_count: u32,
    max_contacts: u32,
    table_size: u32,
    occ_offset: u32,
    occ_words: u32,
    chunk_words: u32,
    voxel_scale: f32,
}

struct Contact {
    position: vec3<f32>,
    penetration: f32,
    normal: vec3<f32>,
    entity_lo: u32,
    entity_hi: u32,
    voxel_index: u32,
    kind: u32,
    pad: u32,
}

struct Output {
    count: atomic<u32>,
    pad0: u32,
    pad1: u32,
    pad2: u32,
    records: array<Contact>,
}

@group(0) @binding(0) var<storage, read> chunk_table: array<vec4<i32>>;
@group(0) @binding(1) var<storage, read> chunk_bits: array<u32>;
@group(0) @binding(2) var<storage, read> frags: array<Fragment>;
@group(0) @binding(3) var<storage, read> frag_bits: array<u32>;
@group(0) @binding(4) var<uniform> params: Params;
@group(0) @binding(5) var<storage, read_write> contacts: Output;

fn chunk_layer(c: vec3<i32>) -> i32 {
    let size = params.table_size;
    if (size == 0u) {
        return -1;
    }
    var h = bitcast<u32>(c.x);
    h = h * 31u + bitcast<u32>(c.y);
    h = h * 31u + bitcast<u32>(c.z);
    let home = h % size;
    for (var i = 0u; i < PROBE_DEPTH; i = i + 1u) {
        let e = chunk_table[(home + i) % size];
        if (all(e.xyz == c)) {
            return e.w;
        }
        if (all(e.xyz == vec3<i32>(EMPTY))) {
            return -1;
        }
    }
    return -1;
}

fn occupied(v: vec3<i32>) -> bool {
    let layer = chunk_layer(v >> vec3<u32>(5u));
    if (layer < 0) {
        return false;
    }
    let l = v & vec3<i32>(31);
    let idx = u32(l.x + l.y * 32 + l.z * 1024);
    let w = u32(layer) * params.chunk_words + (idx >> 5u);
    if (w >= arrayLength(&chunk_bits)) {
        return false;
    }
    return (chunk_bits[w] & (1u << (idx & 31u))) != 0u;
}

fn rotate(q: vec4<f32>, v: vec3<f32>) -> vec3<f32> {
    let t = cross(q.xyz, v) + q.w * v;
    return v + 2.0 * cross(q.xyz, t);
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let frag = frags[params.fragment_index];
    if (any(gid >= frag.size)) {
        return;
    }
    let linear = gid.x + gid.y * frag.size.x + gid.z * frag.size.x * frag.size.y;
    if ((frag.flags & FLAG_SOLID) == 0u) {
        let w = linear >> 5u;
        if (w >= params.occ_words) {
            return;
        }
        if ((frag_bits[params.occ_offset + w] & (1u << (linear & 31u))) == 0u) {
            return;
        }
    }

    let local = (vec3<f32>(gid) + vec3<f32>(0.5) - vec3<f32>(frag.size) * 0.5) * params.voxel_scale;
    let p = rotate(frag.rotation, local) + frag.position;
    let v = vec3<i32>(floor(p));
    if (!occupied(v)) {
        return;
    }

    // +Y first so it wins ties.
    var faces = array<vec3<i32>, 6>(
        vec3<i32>(0, 1, 0),
        vec3<i32>(1, 0, 0),
        vec3<i32>(-1, 0, 0),
        vec3<i32>(0, 0, 1),
        vec3<i32>(0, 0, -1),
        vec3<i32>(0, -1, 0),
    );
    let frac = p - vec3<f32>(v);
    var best = -1;
    var best_dist = 2.0;
    for (var i = 0; i < 6; i = i + 1) {
        let dir = faces[i];
        if (occupied(v + dir)) {
            continue;
        }
        let n = vec3<f32>(dir);
        let f = dot(frac, abs(n));
        let d = select(f, 1.0 - f, n.x + n.y + n.z > 0.0);
        if (d < best_dist) {
            best = i;
            best_dist = d;
        }
    }

    var normal = vec3<f32>(0.0, 1.0, 0.0);
    var depth = best_dist;
    if (best <= 0) {
        var top = v.y + 1;
        for (var k = 0; k < SURFACE_SEARCH; k = k + 1) {
            if (!occupied(vec3<i32>(v.x, top, v.z))) {
                break;
            }
            top = top + 1;
        }
        depth = f32(top) - p.y;
    } else {
        normal = vec3<f32>(faces[best]);
    }

    let slot = atomicAdd(&contacts.count, 1u);
    if (slot < params.max_contacts && slot < arrayLength(&contacts.records)) {
        contacts.records[slot] = Contact(p, depth, normal, frag.entity_lo, frag.entity_hi, linear, KIND_TERRAIN, 0u);
    }
}
`
